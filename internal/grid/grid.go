// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package grid

import (
	"fmt"
	"math"
)

// A Grid is a dense 2D field of float64 values in row-major order.
// Element (x,y) lives at Data[y*Width+x]. Hot loops index Data directly
// with a per-row offset instead of calling At/Set.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// Creates a zero-filled grid of the given dimensions
func New(width, height int) *Grid {
	return &Grid{
		Width : width,
		Height: height,
		Data  : make([]float64, width*height),
	}
}

// Creates a grid wrapping the given data slice without copying.
// The slice length must be width*height.
func NewFromData(width, height int, data []float64) *Grid {
	if len(data)!=width*height {
		panic(fmt.Sprintf("grid: data length %d does not match %dx%d", len(data), width, height))
	}
	return &Grid{Width: width, Height: height, Data: data}
}

func (g *Grid) At(x, y int) float64     { return g.Data[y*g.Width+x] }

func (g *Grid) Set(x, y int, v float64) { g.Data[y*g.Width+x]=v }

// Returns true if both grids have the same width and height
func (g *Grid) EqualShape(o *Grid) bool {
	return g.Width==o.Width && g.Height==o.Height
}

// Creates a deep copy of the grid
func (g *Grid) Clone() *Grid {
	c:=New(g.Width, g.Height)
	copy(c.Data, g.Data)
	return c
}

// Copies the w x h block with top-left corner (x0,y0) into dst,
// allocating dst if nil. The block must lie fully inside the grid.
func (g *Grid) SubGrid(x0, y0, w, h int, dst *Grid) *Grid {
	if x0<0 || y0<0 || x0+w>g.Width || y0+h>g.Height {
		panic(fmt.Sprintf("grid: block %dx%d at (%d,%d) outside %dx%d grid", w, h, x0, y0, g.Width, g.Height))
	}
	if dst==nil { dst=New(w, h) }
	for y:=0; y<h; y++ {
		src:=(y0+y)*g.Width+x0
		copy(dst.Data[y*w:(y+1)*w], g.Data[src:src+w])
	}
	return dst
}

// Sets every element to the given value
func (g *Grid) Fill(v float64) {
	for i:=range g.Data { g.Data[i]=v }
}

// Basic statistics of a grid, calculated in a single pass.
// NaN values are skipped and counted separately.
type Stats struct {
	Min  float64
	Max  float64
	Mean float64
	NaNs int
}

// Calculates min, max and mean of the grid data in one pass
func (g *Grid) Stats() Stats {
	min, max, sum, n:=math.MaxFloat64, -math.MaxFloat64, 0.0, 0
	nans:=0
	for _,v:=range g.Data {
		if math.IsNaN(v) { nans++; continue }
		if v<min { min=v }
		if v>max { max=v }
		sum+=v
		n++
	}
	if n==0 { return Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), NaNs: nans} }
	return Stats{Min: min, Max: max, Mean: sum/float64(n), NaNs: nans}
}

func (s Stats) String() string {
	return fmt.Sprintf("min %.4g max %.4g mean %.4g", s.Min, s.Max, s.Mean)
}
