package assist

import "image"

// Соседи в порядке против часовой стрелки на экране (ось y направлена вниз)
var neighbours = [8]image.Point{
	{1, 0},   // E
	{1, -1},  // NE
	{0, -1},  // N
	{-1, -1}, // NW
	{-1, 0},  // W
	{-1, 1},  // SW
	{0, 1},   // S
	{1, 1},   // SE
}

const west = 4

// binaryMask представление маски: ненулевые пиксели - передний план
type binaryMask struct {
	width, height int
	fg            []bool
}

func newBinaryMask(mask *image.Gray) *binaryMask {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	m := &binaryMask{width: w, height: h, fg: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x, v := range row {
			m.fg[y*w+x] = v != 0
		}
	}
	return m
}

func (m *binaryMask) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.width && y < m.height
}

func (m *binaryMask) at(x, y int) bool {
	return m.inside(x, y) && m.fg[y*m.width+x]
}

// Contours находит внешние контуры областей переднего плана.
//
// Связность переднего плана 8, фона 4. Контуры внутри дыр других областей не
// возвращаются. Каждый контур - плоская последовательность x0, y0, x1, y1, ...
// без упрощения; обход начинается с верхнего левого пикселя области и идёт
// вниз по левой границе. Контуры упорядочены по положению начального пикселя
// в порядке построчной развертки.
func Contours(mask *image.Gray) [][]int {
	if mask == nil {
		return [][]int{}
	}
	m := newBinaryMask(mask)
	if m.width == 0 || m.height == 0 {
		return [][]int{}
	}

	labels, count := m.components()
	if count == 0 {
		return [][]int{}
	}
	outer := m.outsideBackground()

	topLevel := make([]bool, count+1)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			label := labels[y*m.width+x]
			if label == 0 || topLevel[label] {
				continue
			}
			for _, d := range neighbours[:] {
				// 4-соседи: E, N, W, S
				if d.X != 0 && d.Y != 0 {
					continue
				}
				nx, ny := x+d.X, y+d.Y
				if !m.inside(nx, ny) || outer[ny*m.width+nx] {
					topLevel[label] = true
					break
				}
			}
		}
	}

	contours := [][]int{}
	traced := make([]bool, count+1)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			label := labels[y*m.width+x]
			if label == 0 || traced[label] {
				continue
			}
			traced[label] = true
			if topLevel[label] {
				contours = append(contours, m.traceOuterBorder(x, y))
			}
		}
	}
	return contours
}

// components размечает 8-связные области переднего плана, метки с 1
func (m *binaryMask) components() ([]int32, int32) {
	labels := make([]int32, len(m.fg))
	var next int32
	queue := make([]image.Point, 0, 64)

	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			idx := y*m.width + x
			if !m.fg[idx] || labels[idx] != 0 {
				continue
			}
			next++
			labels[idx] = next
			queue = append(queue[:0], image.Pt(x, y))
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				for _, d := range neighbours {
					nx, ny := p.X+d.X, p.Y+d.Y
					if !m.at(nx, ny) {
						continue
					}
					n := ny*m.width + nx
					if labels[n] == 0 {
						labels[n] = next
						queue = append(queue, image.Pt(nx, ny))
					}
				}
			}
		}
	}
	return labels, next
}

// outsideBackground отмечает фон, 4-связный с границей изображения
func (m *binaryMask) outsideBackground() []bool {
	outer := make([]bool, len(m.fg))
	queue := make([]image.Point, 0, 2*(m.width+m.height))

	seed := func(x, y int) {
		idx := y*m.width + x
		if !m.fg[idx] && !outer[idx] {
			outer[idx] = true
			queue = append(queue, image.Pt(x, y))
		}
	}
	for x := 0; x < m.width; x++ {
		seed(x, 0)
		seed(x, m.height-1)
	}
	for y := 0; y < m.height; y++ {
		seed(0, y)
		seed(m.width-1, y)
	}

	for len(queue) > 0 {
		p := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, d := range [4]image.Point{{1, 0}, {0, -1}, {-1, 0}, {0, 1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if !m.inside(nx, ny) {
				continue
			}
			n := ny*m.width + nx
			if !m.fg[n] && !outer[n] {
				outer[n] = true
				queue = append(queue, image.Pt(nx, ny))
			}
		}
	}
	return outer
}

// traceOuterBorder обходит внешнюю границу области (обход границы Suzuki-Abe).
// (sx, sy) - верхний левый пиксель области, его западный сосед - фон.
func (m *binaryMask) traceOuterBorder(sx, sy int) []int {
	first := -1
	for k := 0; k < 8; k++ {
		d := (west - k + 8) % 8
		if m.at(sx+neighbours[d].X, sy+neighbours[d].Y) {
			first = d
			break
		}
	}
	if first < 0 {
		return []int{sx, sy}
	}

	x1, y1 := sx+neighbours[first].X, sy+neighbours[first].Y
	x2, y2 := x1, y1
	x3, y3 := sx, sy
	contour := make([]int, 0, 16)

	for {
		back := direction(x2-x3, y2-y3)
		x4, y4 := x2, y2
		for k := 1; k <= 8; k++ {
			d := (back + k) % 8
			nx, ny := x3+neighbours[d].X, y3+neighbours[d].Y
			if m.at(nx, ny) {
				x4, y4 = nx, ny
				break
			}
		}

		contour = append(contour, x3, y3)
		if x4 == sx && y4 == sy && x3 == x1 && y3 == y1 {
			return contour
		}
		x2, y2 = x3, y3
		x3, y3 = x4, y4
	}
}

func direction(dx, dy int) int {
	for i, d := range neighbours {
		if d.X == dx && d.Y == dy {
			return i
		}
	}
	return west
}
