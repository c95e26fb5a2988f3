package assist

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContoursEmptyMask(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 8, 8))
	contours := Contours(mask)
	require.NotNil(t, contours)
	assert.Empty(t, contours)
}

func TestContoursNilAndZeroSized(t *testing.T) {
	assert.Empty(t, Contours(nil))
	assert.Empty(t, Contours(image.NewGray(image.Rect(0, 0, 0, 0))))
}

func TestContoursFullSquare(t *testing.T) {
	mask := squareMask(10, 10, 0, 0, 9, 9, 1)

	var want []int
	for y := 0; y <= 9; y++ {
		want = append(want, 0, y)
	}
	for x := 1; x <= 9; x++ {
		want = append(want, x, 9)
	}
	for y := 8; y >= 0; y-- {
		want = append(want, 9, y)
	}
	for x := 8; x >= 1; x-- {
		want = append(want, x, 0)
	}

	got := Contours(mask)
	require.Len(t, got, 1)
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("contour mismatch (-want +got):\n%s", diff)
	}
	for _, corner := range [][2]int{{0, 0}, {0, 9}, {9, 9}, {9, 0}} {
		assert.True(t, containsPoint(got[0], corner), "missing corner %v", corner)
	}
}

func TestContoursOffsetSquareOnlyBoundary(t *testing.T) {
	mask := squareMask(12, 12, 2, 3, 6, 7, 255)

	got := Contours(mask)
	require.Len(t, got, 1)
	contour := got[0]
	require.Len(t, contour, 2*16)
	assert.Equal(t, []int{2, 3}, contour[:2])

	for i := 0; i < len(contour); i += 2 {
		x, y := contour[i], contour[i+1]
		onBoundary := x == 2 || x == 6 || y == 3 || y == 7
		assert.True(t, onBoundary, "point (%d,%d) is not on the boundary", x, y)
	}
	for _, corner := range [][2]int{{2, 3}, {2, 7}, {6, 7}, {6, 3}} {
		assert.True(t, containsPoint(contour, corner), "missing corner %v", corner)
	}
}

func TestContoursSinglePixelAndLine(t *testing.T) {
	pixel := squareMask(5, 5, 3, 1, 3, 1, 1)
	assert.Equal(t, [][]int{{3, 1}}, Contours(pixel))

	line := squareMask(5, 3, 0, 1, 2, 1, 1)
	assert.Equal(t, [][]int{{0, 1, 1, 1, 2, 1, 1, 1}}, Contours(line))
}

func TestContoursReturnsAllBlobsInRasterOrder(t *testing.T) {
	mask := squareMask(10, 10, 5, 5, 6, 6, 1)
	for y := 1; y <= 2; y++ {
		for x := 1; x <= 2; x++ {
			mask.Pix[y*mask.Stride+x] = 1
		}
	}

	got := Contours(mask)
	require.Len(t, got, 2)
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2, 2, 1}, got[0])
	assert.Equal(t, []int{5, 5, 5, 6, 6, 6, 6, 5}, got[1])
}

func TestContoursDiagonalPixelsAreConnected(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	mask.Pix[1*mask.Stride+1] = 1
	mask.Pix[2*mask.Stride+2] = 1

	got := Contours(mask)
	require.Len(t, got, 1)
	assert.Equal(t, []int{1, 1, 2, 2}, got[0])
}

func TestContoursSkipsBlobsInsideHoles(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := 0; i < 9; i++ {
		mask.Pix[0*mask.Stride+i] = 1
		mask.Pix[8*mask.Stride+i] = 1
		mask.Pix[i*mask.Stride+0] = 1
		mask.Pix[i*mask.Stride+8] = 1
	}
	mask.Pix[4*mask.Stride+4] = 1

	got := Contours(mask)
	require.Len(t, got, 1)
	assert.Equal(t, []int{0, 0}, got[0][:2])
	assert.Len(t, got[0], 2*32)
	assert.False(t, containsPoint(got[0], [2]int{4, 4}))
}

func TestContoursRespectsSubImageOrigin(t *testing.T) {
	parent := squareMask(20, 20, 10, 10, 11, 11, 1)
	sub := parent.SubImage(image.Rect(10, 10, 15, 15)).(*image.Gray)

	got := Contours(sub)
	require.Len(t, got, 1)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 1, 0}, got[0])
}

func containsPoint(contour []int, p [2]int) bool {
	for i := 0; i+1 < len(contour); i += 2 {
		if contour[i] == p[0] && contour[i+1] == p[1] {
			return true
		}
	}
	return false
}
