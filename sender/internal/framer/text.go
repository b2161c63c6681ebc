package framer

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawText writes one line of s in col with its top left corner at (x, y).
func drawText(dst *image.NRGBA, face *basicfont.Face, col color.Color, x, y int, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(s)
}

// wrap breaks s into lines no wider than width pixels. A word longer than
// a line is split by glyph.
func wrap(face *basicfont.Face, s string, width int) []string {
	perLine := width / face.Advance
	if perLine < 1 {
		perLine = 1
	}

	var lines []string
	for _, para := range strings.Split(s, "\n") {
		var line []rune
		for _, word := range strings.Fields(para) {
			w := []rune(word)
			for len(w) > perLine {
				if len(line) > 0 {
					lines = append(lines, string(line))
					line = nil
				}
				lines = append(lines, string(w[:perLine]))
				w = w[perLine:]
			}
			switch {
			case len(line) == 0:
				line = w
			case len(line)+1+len(w) <= perLine:
				line = append(append(line, ' '), w...)
			default:
				lines = append(lines, string(line))
				line = w
			}
		}
		lines = append(lines, string(line))
	}
	return lines
}
