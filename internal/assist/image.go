package assist

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// RGBImage плотно упакованное изображение H×W×3 в порядке RGB
type RGBImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRGBImage создает черное изображение заданного размера
func NewRGBImage(width, height int) *RGBImage {
	return &RGBImage{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// Clone возвращает независимую копию пикселей
func (m *RGBImage) Clone() *RGBImage {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return &RGBImage{Width: m.Width, Height: m.Height, Pix: pix}
}

func (m *RGBImage) ColorModel() color.Model { return color.RGBAModel }

func (m *RGBImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

func (m *RGBImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return color.RGBA{}
	}
	i := (y*m.Width + x) * 3
	return color.RGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: 0xff}
}

// Set записывает пиксель
func (m *RGBImage) Set(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	i := (y*m.Width + x) * 3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = c.R, c.G, c.B
}

// DecodeImage декодирует растровое изображение любого распространенного формата в RGB.
// Пиксели остаются в сохраненной сетке: EXIF-ориентация не применяется, альфа-канал отбрасывается.
func DecodeImage(r io.Reader) (*RGBImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}
	if len(data) == 0 {
		return nil, &ImageDecodeError{Err: errors.New("empty image payload")}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}

	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	out := NewRGBImage(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+out.Width*4]
		dst := out.Pix[y*out.Width*3 : (y+1)*out.Width*3]
		for x := 0; x < out.Width; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return out, nil
}
