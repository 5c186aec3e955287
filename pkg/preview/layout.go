package preview

import (
	"math"
)

// Grid is a rows-by-columns tiling of the preview composite.
type Grid struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (g Grid) Valid() bool {
	return g.Rows > 0 && g.Cols > 0
}

// AutoLayout picks a near-square grid for n frames: rows starts at
// floor(sqrt(n)), a column is added unless the square is exact, and rows
// grow until the grid can hold every frame.
func AutoLayout(n int) Grid {
	if n <= 0 {
		return Grid{}
	}
	rows := int(math.Sqrt(float64(n)))
	cols := rows
	if rows*rows != n {
		cols = rows + 1
	}
	for rows*cols < n {
		rows++
	}

	return Grid{Rows: rows, Cols: cols}
}
