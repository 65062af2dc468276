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


// Package quadfit fits 2D quadratic models to small surfaces and locates
// their extrema with sub-cell precision.
package quadfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/specklight/internal/grid"
)

// Fits the quadratic model
//
//	v(y,x) ~ p0 + p1*y + p2*x + p3*y^2 + p4*x^2 + p5*y*x
//
// to all cells of the surface by linear least squares, with y and x the
// integer cell coordinates starting at zero.
func Fit(a *grid.Grid) (p [6]float64, err error) {
	n:=a.Width*a.Height
	A:=mat.NewDense(n, 6, nil)
	b:=mat.NewDense(n, 1, nil)
	i:=0
	for y:=0; y<a.Height; y++ {
		for x:=0; x<a.Width; x++ {
			fy, fx:=float64(y), float64(x)
			A.SetRow(i, []float64{1, fy, fx, fy*fy, fx*fx, fy*fx})
			b.Set(i, 0, a.Data[i])
			i++
		}
	}
	var sol mat.Dense
	if err:=sol.Solve(A, b); err!=nil {
		return p, fmt.Errorf("quadfit: %w", err)
	}
	for j:=0; j<6; j++ { p[j]=sol.At(j, 0) }
	return p, nil
}

// Fits a quadratic model to the surface and locates its maximum.
// Returns the model value and position of the extremum. ok is false if the
// fitted model has no proper maximum, that is, if the half-Hessian
// [[p3, p5/2], [p5/2, p4]] has a positive diagonal element or a negative
// determinant, or if it is singular; the extremum position is still
// returned when the stationary point exists.
func Max(a *grid.Grid) (val, y, x float64, ok bool, err error) {
	p, err:=Fit(a)
	if err!=nil {
		return 0, math.NaN(), math.NaN(), false, err
	}
	det:=4*p[3]*p[4]-p[5]*p[5]
	if det==0 {
		return 0, math.NaN(), math.NaN(), false, nil
	}
	// stationary point of the model, via the closed-form 2x2 inverse
	y=(p[2]*p[5]-2*p[4]*p[1])/det
	x=(p[1]*p[5]-2*p[3]*p[2])/det
	val=p[0]+0.5*(p[1]*y+p[2]*x)

	ok=true
	if p[3]>0 {
		ok=false
	} else if p[4]>0 {
		ok=false
	} else if p[3]*p[4]-0.25*p[5]*p[5]<0 {
		ok=false
	}
	return val, y, x, ok, nil
}

// Locates the minimum of the surface with sub-cell precision. A quadratic
// model is fitted to the box of half-width width around the integer
// minimum, shifted inward at the surface borders, and the model minimum
// replaces the integer one. If the model has no proper minimum, or its
// minimum lies further than width+1 cells from the box center, or the
// surface is too small to place the box, the integer minimum is returned
// with refined=false.
//
// box is an optional (2*width+1)^2 scratch grid, allocated when nil.
func SubPixMin(a *grid.Grid, width int, box *grid.Grid) (y, x float64, refined bool) {
	my, mx:=argMin(a)
	m:=2*width+1
	if width<1 || a.Width<m || a.Height<m {
		return float64(my), float64(mx), false
	}

	cy, cx:=my, mx
	if cy<width {
		cy=width
	} else if cy>a.Height-1-width {
		cy=a.Height-1-width
	}
	if cx<width {
		cx=width
	} else if cx>a.Width-1-width {
		cx=a.Width-1-width
	}

	if box==nil { box=grid.New(m, m) }
	for j:=0; j<m; j++ {
		src:=(cy-width+j)*a.Width+cx-width
		d:=j*m
		for i:=0; i<m; i++ { box.Data[d+i]=-a.Data[src+i] }
	}

	_, by, bx, ok, err:=Max(box)
	if err!=nil || !ok {
		return float64(my), float64(mx), false
	}
	// a model minimum far outside the box means the quadratic disagrees
	// with the discrete surface, typically from near-zero curvature
	limit:=float64(width)+1
	if math.Abs(by-float64(width))>limit || math.Abs(bx-float64(width))>limit {
		return float64(my), float64(mx), false
	}
	return float64(cy-width)+by, float64(cx-width)+bx, true
}

// Returns the position of the smallest cell, taking the first occurrence
// in row-major order on ties
func argMin(a *grid.Grid) (y, x int) {
	best:=math.Inf(1)
	for j:=0; j<a.Height; j++ {
		row:=j*a.Width
		for i:=0; i<a.Width; i++ {
			if v:=a.Data[row+i]; v<best {
				best, y, x=v, j, i
			}
		}
	}
	return y, x
}
