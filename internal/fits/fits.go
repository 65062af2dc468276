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


// Package fits reads and writes simple FITS images and exports grids to
// 16-bit TIFF and JPEG for inspection.
package fits

import (
	"github.com/mlnoga/specklight/internal/grid"
)

const fitsBlockSize = 2880    // header and data are padded to multiples of this
const headerLineSize = 80     // fixed width of a header card

// A FITS image: header metadata plus a single 2D data grid.
type Image struct {
	FileName string  // original file name, if any
	Header   Header  // parsed header cards
	Bitpix   int     // bits per value as per the standard, negative for IEEE floats
	Bzero    float64 // offset to apply to raw values, folded into Grid after reading
	Bscale   float64 // scale to apply to raw values, folded into Grid after reading
	Grid     *grid.Grid
}

// Parsed FITS header cards, keyed by card name.
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int
	Floats   map[string]float64
	Strings  map[string]string
	Dates    map[string]string
	History  []string
	Comments []string
	End      bool
}

// Creates an empty image with neutral scaling
func NewImage() *Image {
	return &Image{
		Bitpix: -32,
		Bscale: 1,
		Header: newHeader(),
	}
}

// Creates an image wrapping the given grid, ready for writing
func NewImageFromGrid(g *grid.Grid) *Image {
	i:=NewImage()
	i.Grid=g
	return i
}

func newHeader() Header {
	return Header{
		Bools  : map[string]bool{},
		Ints   : map[string]int{},
		Floats : map[string]float64{},
		Strings: map[string]string{},
		Dates  : map[string]string{},
	}
}

// Removes and returns the given integer card
func (h *Header) popInt(key string) (int, bool) {
	if v, ok:=h.Ints[key]; ok {
		delete(h.Ints, key)
		return v, true
	}
	return 0, false
}

// Removes and returns the given card, accepting integer or float values
func (h *Header) popFloat(key string, def float64) float64 {
	if v, ok:=h.Ints[key]; ok {
		delete(h.Ints, key)
		return float64(v)
	}
	if v, ok:=h.Floats[key]; ok {
		delete(h.Floats, key)
		return v
	}
	return def
}
