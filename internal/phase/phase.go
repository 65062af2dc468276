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


// Package phase integrates differential phase maps into a phase surface.
package phase

import (
	"fmt"
	"math"

	"github.com/mlnoga/specklight/internal/fourier"
	"github.com/mlnoga/specklight/internal/grid"
)

// Integrates the horizontal and vertical differential phase maps dx and dy
// into a phase surface, up to a constant offset, by inverting the gradient
// operator in Fourier space. Both maps are mirrored into a double-sized
// domain with matching symmetry to suppress wrap-around artifacts at the
// borders. NaN cells, e.g. singular matching cells, contribute zero.
func Integrate(dx, dy *grid.Grid) (*grid.Grid, error) {
	if !dx.EqualShape(dy) {
		return nil, fmt.Errorf("phase: dx map is %dx%d but dy map is %dx%d", dx.Width, dx.Height, dy.Width, dy.Height)
	}
	w, h:=dx.Width, dx.Height
	fx, fy:=sanitize(dx), sanitize(dy)

	// combine both gradients into the complex field fx + i*fy, mirrored
	// so that the horizontal part is odd in x and the vertical part odd in y
	w2, h2:=2*w, 2*h
	g:=make([]complex128, w2*h2)
	for y:=0; y<h; y++ {
		ym:=h-1-y
		for x:=0; x<w; x++ {
			xm:=w-1-x
			g[y*w2+x]=complex(-fx[ym*w+xm], -fy[ym*w+xm])
			g[y*w2+w+x]=complex(fx[ym*w+x], -fy[ym*w+x])
			g[(h+y)*w2+x]=complex(-fx[y*w+xm], fy[y*w+xm])
			g[(h+y)*w2+w+x]=complex(fx[y*w+x], fy[y*w+x])
		}
	}

	plan:=fourier.NewPlan(w2, h2)
	plan.Forward(g)
	for y:=0; y<h2; y++ {
		qy:=2*math.Pi*fftfreq(y, h2)
		row:=y*w2
		for x:=0; x<w2; x++ {
			if y==0 && x==0 {
				g[0]=0 // the constant offset is not observable in the gradients
				continue
			}
			qx:=2*math.Pi*fftfreq(x, w2)
			g[row+x]*=1/complex(-qy, qx) // divide by i*(qx + i*qy)
		}
	}
	plan.Inverse(g)

	out:=grid.New(w, h)
	scale:=1/float64(w2*h2)
	for y:=0; y<h; y++ {
		src:=(h+y)*w2+w
		for x:=0; x<w; x++ {
			out.Data[y*w+x]=real(g[src+x])*scale
		}
	}
	return out, nil
}

// Returns the grid data with NaN cells replaced by zero
func sanitize(g *grid.Grid) []float64 {
	d:=make([]float64, len(g.Data))
	for i, v:=range g.Data {
		if math.IsNaN(v) { continue }
		d[i]=v
	}
	return d
}

// Returns the k-th discrete Fourier transform sample frequency for length n
func fftfreq(k, n int) float64 {
	if k<=(n-1)/2 { return float64(k)/float64(n) }
	return float64(k-n)/float64(n)
}
