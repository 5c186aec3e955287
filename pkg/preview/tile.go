package preview

import (
	"image"

	"golang.org/x/image/draw"
)

func resize(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return dst
}

// tile arranges equally sized cells row-major into the grid. Cells beyond
// the frame count stay black so every row keeps uniform width.
func tile(cells []*image.RGBA, g Grid, cellW, cellH int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, g.Cols*cellW, g.Rows*cellH))
	for i, cell := range cells {
		if i >= g.Rows*g.Cols {
			break
		}
		x := (i % g.Cols) * cellW
		y := (i / g.Cols) * cellH
		r := image.Rect(x, y, x+cellW, y+cellH)
		draw.Draw(out, r, cell, cell.Bounds().Min, draw.Src)
	}

	return out
}
