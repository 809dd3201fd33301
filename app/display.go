package app

import (
	"image/color"
	"strings"

	"mpkern/hal"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	fontHeight = int16(10)
	fontOffset = int16(8)
)

var (
	colorBG    = color.RGBA{R: 16, G: 24, B: 32, A: 255}
	colorFG    = color.RGBA{R: 220, G: 220, B: 220, A: 255}
	colorTitle = color.RGBA{R: 120, G: 200, B: 255, A: 255}
)

// fbDisplay adapts an RGB565 framebuffer to the tinyfont drawing target.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = (*fbDisplay)(nil)

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	return &fbDisplay{fb: fb}
}

func (d *fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := d.fb.Buffer()
	if buf == nil {
		return
	}

	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}

	pixel := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
	off := iy*d.fb.StrideBytes() + ix*2
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// drawLines clears the screen and writes lines top to bottom, wrapping long
// lines at the screen width. The first line uses the title color. It returns
// how many screen rows were used.
func drawLines(d *fbDisplay, bg color.RGBA, lines []string) (int, error) {
	if d.fb == nil {
		return 0, nil
	}
	d.fb.ClearRGB(bg.R, bg.G, bg.B)

	font := &proggy.TinySZ8pt7b
	_, outbox := tinyfont.LineWidth(font, "0")
	fontWidth := int16(outbox)
	if fontWidth <= 0 {
		fontWidth = 6
	}
	w, h := d.Size()
	cols := int(w / fontWidth)
	if cols <= 0 {
		cols = 1
	}

	rows := 0
	y := int16(0)
	for i, line := range lines {
		c := colorFG
		if i == 0 {
			c = colorTitle
		}
		for {
			if y+fontHeight > h {
				return rows, d.Display()
			}
			chunk, rest := takeRunes(line, cols)
			tinyfont.WriteLine(d, font, 0, y+fontOffset, chunk, c)
			y += fontHeight
			rows++
			line = strings.TrimLeft(rest, " ")
			if line == "" {
				break
			}
		}
	}
	return rows, d.Display()
}

func takeRunes(s string, n int) (string, string) {
	if n <= 0 {
		return "", s
	}
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx], s[idx:]
		}
		i++
	}
	return s, ""
}
