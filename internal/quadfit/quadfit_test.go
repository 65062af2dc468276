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


package quadfit

import (
	"math"
	"testing"

	"github.com/mlnoga/specklight/internal/grid"
)

// evaluates p0 + p1*y + p2*x + p3*y^2 + p4*x^2 + p5*y*x on a w x h grid
func modelSurface(w, h int, p [6]float64) *grid.Grid {
	g:=grid.New(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			fy, fx:=float64(y), float64(x)
			g.Set(x, y, p[0]+p[1]*fy+p[2]*fx+p[3]*fy*fy+p[4]*fx*fx+p[5]*fy*fx)
		}
	}
	return g
}

func TestFitRecoversCoefficients(t *testing.T) {
	want:=[6]float64{0.7, -1.2, 2.5, 0.33, -0.85, 0.11}
	got, err:=Fit(modelSurface(5, 5, want))
	if err!=nil { t.Fatalf("fit: %v", err) }
	for i:=range want {
		if math.Abs(got[i]-want[i])>1e-9 {
			t.Errorf("p[%d]=%g; want %g", i, got[i], want[i])
		}
	}
}

func TestMaxParaboloid(t *testing.T) {
	// concave paraboloid with peak 5 at (y,x)=(1.3, 2.2)
	ty, tx:=1.3, 2.2
	g:=grid.New(5, 5)
	for y:=0; y<5; y++ {
		for x:=0; x<5; x++ {
			dy, dx:=float64(y)-ty, float64(x)-tx
			g.Set(x, y, 5-2*dy*dy-1.5*dx*dx+0.5*dy*dx)
		}
	}
	val, y, x, ok, err:=Max(g)
	if err!=nil { t.Fatalf("max: %v", err) }
	if !ok { t.Fatalf("proper maximum not recognized") }
	if math.Abs(y-ty)>1e-9 || math.Abs(x-tx)>1e-9 {
		t.Errorf("peak at (%g,%g); want (%g,%g)", y, x, ty, tx)
	}
	if math.Abs(val-5)>1e-9 {
		t.Errorf("peak value %g; want 5", val)
	}
}

func TestMaxRejectsNonConcave(t *testing.T) {
	cases:=[]struct {
		name string
		p    [6]float64
	}{
		{"convexY",  [6]float64{0, -2, 0, 1, -1, 0}},   // positive y curvature
		{"convexX",  [6]float64{0, 0, -2, -1, 1, 0}},   // positive x curvature
		{"saddle",   [6]float64{0, -1, -1, 0, 0, 1}},   // indefinite via cross term
	}
	for _,c:=range cases {
		_, _, _, ok, err:=Max(modelSurface(5, 5, c.p))
		if err!=nil { t.Fatalf("%s: %v", c.name, err) }
		if ok { t.Errorf("%s: accepted as proper maximum", c.name) }
	}
}

func TestSubPixMinQuadratic(t *testing.T) {
	ty, tx:=4.3, 3.6
	g:=grid.New(9, 9)
	for y:=0; y<9; y++ {
		for x:=0; x<9; x++ {
			dy, dx:=float64(y)-ty, float64(x)-tx
			g.Set(x, y, dy*dy+dx*dx)
		}
	}
	y, x, refined:=SubPixMin(g, 1, nil)
	if !refined { t.Fatalf("refinement failed on exact quadratic") }
	if math.Abs(y-ty)>1e-9 || math.Abs(x-tx)>1e-9 {
		t.Errorf("minimum at (%g,%g); want (%g,%g)", y, x, ty, tx)
	}
}

func TestSubPixMinScratchReuse(t *testing.T) {
	g:=grid.New(5, 5)
	for y:=0; y<5; y++ {
		for x:=0; x<5; x++ {
			dy, dx:=float64(y)-2.25, float64(x)-1.75
			g.Set(x, y, dy*dy+dx*dx)
		}
	}
	box:=grid.New(3, 3)
	y, x, refined:=SubPixMin(g, 1, box)
	if !refined { t.Fatalf("refinement failed on exact quadratic") }
	if math.Abs(y-2.25)>1e-9 || math.Abs(x-1.75)>1e-9 {
		t.Errorf("minimum at (%g,%g); want (2.25,1.75)", y, x)
	}
}

func TestSubPixMinFallback(t *testing.T) {
	// a flat surface has no curvature to fit; expect the integer minimum
	g:=grid.New(5, 5)
	y, x, refined:=SubPixMin(g, 1, nil)
	if refined { t.Errorf("flat surface refined") }
	if y!=0 || x!=0 { t.Errorf("fallback minimum at (%g,%g); want (0,0)", y, x) }

	// a plane has its minimum at a corner and no curvature either
	for j:=0; j<5; j++ {
		for i:=0; i<5; i++ { g.Set(i, j, float64(i+j)) }
	}
	y, x, refined=SubPixMin(g, 1, nil)
	if refined { t.Errorf("planar surface refined") }
	if y!=0 || x!=0 { t.Errorf("fallback minimum at (%g,%g); want (0,0)", y, x) }
}

func TestSubPixMinTooSmall(t *testing.T) {
	g:=grid.NewFromData(1, 1, []float64{3})
	y, x, refined:=SubPixMin(g, 1, nil)
	if refined { t.Errorf("1x1 surface refined") }
	if y!=0 || x!=0 { t.Errorf("minimum at (%g,%g); want (0,0)", y, x) }
}
