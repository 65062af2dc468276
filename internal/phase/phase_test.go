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


package phase

import (
	"math"
	"testing"

	"github.com/mlnoga/specklight/internal/grid"
)

func TestIntegrateZero(t *testing.T) {
	out, err:=Integrate(grid.New(16, 12), grid.New(16, 12))
	if err!=nil { t.Fatalf("integrate: %v", err) }
	for i, v:=range out.Data {
		if math.Abs(v)>1e-12 { t.Fatalf("cell %d: %g; want 0", i, v) }
	}
}

func TestIntegrateGaussianBump(t *testing.T) {
	w, h:=64, 64
	sigma:=6.0
	cx, cy:=31.5, 31.5
	phi:=grid.New(w, h)
	dx:=grid.New(w, h)
	dy:=grid.New(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			ddx, ddy:=float64(x)-cx, float64(y)-cy
			v:=math.Exp(-(ddx*ddx+ddy*ddy)/(2*sigma*sigma))
			phi.Set(x, y, v)
			dx.Set(x, y, -ddx/(sigma*sigma)*v)
			dy.Set(x, y, -ddy/(sigma*sigma)*v)
		}
	}

	out, err:=Integrate(dx, dy)
	if err!=nil { t.Fatalf("integrate: %v", err) }

	// the surface is recovered up to a constant offset
	offset:=0.0
	for i:=range out.Data { offset+=out.Data[i]-phi.Data[i] }
	offset/=float64(len(out.Data))
	worst:=0.0
	for i:=range out.Data {
		if d:=math.Abs(out.Data[i]-phi.Data[i]-offset); d>worst { worst=d }
	}
	if worst>0.05 {
		t.Errorf("peak-normalized reconstruction error %g; want <=0.05", worst)
	}
}

func TestIntegrateLinearity(t *testing.T) {
	w, h:=24, 20
	dx, dy:=grid.New(w, h), grid.New(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			dx.Set(x, y, math.Sin(float64(x)*0.3)*math.Cos(float64(y)*0.2))
			dy.Set(x, y, math.Cos(float64(x)*0.1)*math.Sin(float64(y)*0.4))
		}
	}
	dx2, dy2:=grid.New(w, h), grid.New(w, h)
	for i:=range dx.Data {
		dx2.Data[i]=2*dx.Data[i]
		dy2.Data[i]=2*dy.Data[i]
	}

	a, err:=Integrate(dx, dy)
	if err!=nil { t.Fatalf("integrate: %v", err) }
	b, err:=Integrate(dx2, dy2)
	if err!=nil { t.Fatalf("integrate: %v", err) }
	for i:=range a.Data {
		if d:=math.Abs(b.Data[i]-2*a.Data[i]); d>1e-9 {
			t.Fatalf("cell %d: doubled gradients give %g; want %g", i, b.Data[i], 2*a.Data[i])
		}
	}
}

func TestIntegrateNaNCells(t *testing.T) {
	dx, dy:=grid.New(16, 16), grid.New(16, 16)
	dx.Set(3, 4, math.NaN())
	dy.Set(8, 2, math.NaN())
	out, err:=Integrate(dx, dy)
	if err!=nil { t.Fatalf("integrate: %v", err) }
	for i, v:=range out.Data {
		if math.IsNaN(v) { t.Fatalf("cell %d is NaN", i) }
	}
}

func TestIntegrateShapeMismatch(t *testing.T) {
	if _, err:=Integrate(grid.New(16, 16), grid.New(16, 12)); err==nil {
		t.Errorf("mismatched maps accepted")
	}
}
