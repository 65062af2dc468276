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
	"math"
)

// Returns the 1D Hamming taper of length m, i.e. 0.54 - 0.46*cos(2*pi*i/(m-1)).
// A length of one yields the single weight 1.
func hamming(m int) []float64 {
	h:=make([]float64, m)
	if m==1 {
		h[0]=1
		return h
	}
	for i:=0; i<m; i++ {
		h[i]=0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(m-1))
	}
	return h
}

// Returns the square analysis window of half-width nw, that is, the outer
// product of two 1D Hamming tapers of length 2*nw+1, normalized to unit sum.
// All weights are strictly positive and the window is symmetric under
// horizontal, vertical and diagonal flips.
func HammingWindow(nw int) *Grid {
	m  :=2*nw+1
	h  :=hamming(m)
	w  :=New(m, m)
	sum:=0.0
	for y:=0; y<m; y++ {
		for x:=0; x<m; x++ {
			v:=h[y]*h[x]
			w.Data[y*m+x]=v
			sum+=v
		}
	}
	for i:=range w.Data { w.Data[i]/=sum }
	return w
}
