// SPDX-License-Identifier: MIT
package tui

import (
	"strings"
)

// waterfallRamp maps intensity to glyph, quietest first.
var waterfallRamp = []rune{' ', '.', ':', '-', '=', '+', '*', '#', '%', '@'}

const barGlyph = '█'

// peak returns the largest value in rows, or zero.
func peak(rows [][]float64) float64 {
	var m float64
	for _, row := range rows {
		for _, v := range row {
			m = max(m, v)
		}
	}
	return m
}

// columnValue returns the largest of row[lo:hi], clamped to the row.
func columnValue(row []float64, lo, hi int) float64 {
	hi = min(hi, len(row))
	if lo >= hi {
		if lo < len(row) {
			return row[lo]
		}
		return 0
	}
	var m float64
	for _, v := range row[lo:hi] {
		m = max(m, v)
	}
	return m
}

// binRange returns the bins [lo, hi) that column c of cols covers when bins
// are spread across the width.
func binRange(c, cols, bins int) (int, int) {
	lo := c * bins / cols
	hi := (c + 1) * bins / cols
	return lo, max(hi, lo+1)
}

// RenderWaterfall draws the last height rows of grid, newest at the top,
// with bins [0, bins) spread over width columns. Intensities are scaled to
// the loudest cell in the grid.
func RenderWaterfall(grid [][]float64, bins, width, height int) string {
	if width < 1 || height < 1 || len(grid) == 0 {
		return ""
	}
	bins = min(bins, len(grid[0]))
	if bins < 1 {
		return ""
	}

	rows := grid[max(0, len(grid)-height):]
	scale := peak(rows)

	var out strings.Builder
	out.Grow((width + 1) * len(rows) * 3)
	for r := len(rows) - 1; r >= 0; r-- {
		for c := range width {
			lo, hi := binRange(c, width, bins)
			out.WriteRune(rampGlyph(columnValue(rows[r], lo, hi), scale))
		}
		if r > 0 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func rampGlyph(v, scale float64) rune {
	if scale <= 0 {
		return waterfallRamp[0]
	}
	idx := int(v / scale * float64(len(waterfallRamp)-1))
	idx = max(0, min(idx, len(waterfallRamp)-1))
	return waterfallRamp[idx]
}

// RenderBars draws row[0:bins] as vertical bars over width columns and
// height lines, scaled to the row's own peak.
func RenderBars(row []float64, bins, width, height int) string {
	if width < 1 || height < 1 {
		return ""
	}
	bins = min(bins, len(row))

	heights := make([]int, width)
	if bins > 0 {
		scale := peak([][]float64{row[:bins]})
		for c := range width {
			lo, hi := binRange(c, width, bins)
			if scale > 0 {
				heights[c] = int(columnValue(row[:bins], lo, hi) / scale * float64(height))
			}
		}
	}

	var out strings.Builder
	for line := height; line >= 1; line-- {
		for _, h := range heights {
			if h >= line {
				out.WriteRune(barGlyph)
			} else {
				out.WriteByte(' ')
			}
		}
		if line > 1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}
