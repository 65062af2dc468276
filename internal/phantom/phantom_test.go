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


package phantom

import (
	"math"
	"testing"

	"github.com/mlnoga/specklight/internal/grid"
)

func TestSpeckleDeterminism(t *testing.T) {
	a:=Speckle(32, 24, 1.5, 42)
	b:=Speckle(32, 24, 1.5, 42)
	for i:=range a.Data {
		if a.Data[i]!=b.Data[i] {
			t.Fatalf("same seed diverges at %d: %g vs %g", i, a.Data[i], b.Data[i])
		}
	}
	c:=Speckle(32, 24, 1.5, 43)
	same:=true
	for i:=range a.Data {
		if a.Data[i]!=c.Data[i] { same=false; break }
	}
	if same { t.Errorf("different seeds produce identical patterns") }
}

func TestSpeckleMean(t *testing.T) {
	g:=Speckle(64, 64, 2, 7)
	if mean:=g.Stats().Mean; math.Abs(mean-1)>1e-9 {
		t.Errorf("mean=%g; want 1", mean)
	}
}

func TestShiftIntegerRoll(t *testing.T) {
	g:=Speckle(16, 12, 0, 5)
	s:=Shift(g, 1, 2)
	for y:=0; y<12; y++ {
		for x:=0; x<16; x++ {
			want:=g.At((x+2)%16, (y+1)%12)
			if got:=s.At(x, y); got!=want {
				t.Fatalf("shift(1,2) at (%d,%d)=%g; want %g", x, y, got, want)
			}
		}
	}
}

func TestShiftHalfPixel(t *testing.T) {
	g:=Speckle(16, 12, 0, 9)
	s:=Shift(g, 0.5, 0)
	for y:=0; y<12; y++ {
		for x:=0; x<16; x++ {
			want:=0.5*(g.At(x, y)+g.At(x, (y+1)%12))
			if d:=math.Abs(s.At(x, y)-want); d>1e-12 {
				t.Fatalf("shift(0.5,0) at (%d,%d) deviates by %g", x, y, d)
			}
		}
	}
}

func TestWarpZeroIdentity(t *testing.T) {
	g:=Speckle(20, 20, 1, 3)
	zero:=grid.New(20, 20)
	w:=Warp(g, zero, zero)
	for i:=range g.Data {
		if math.Abs(w.Data[i]-g.Data[i])>1e-12 {
			t.Fatalf("zero warp changed cell %d", i)
		}
	}
}

func TestDatasetGroundTruth(t *testing.T) {
	opts:=Options{
		Width: 48, Height: 40, Exposures: 2,
		Grain: 1.5, Radius: 10, Bend: 2, Absorb: 0.5, Scatter: 0.4,
		Seed: 11,
	}
	d, err:=New(opts)
	if err!=nil { t.Fatalf("new: %v", err) }
	if len(d.Sample)!=2 || len(d.Reference)!=2 {
		t.Fatalf("got %d/%d exposures; want 2/2", len(d.Sample), len(d.Reference))
	}

	// outside the sphere nothing bends, absorbs or scatters
	if v:=d.T.At(1, 1); v!=1 { t.Errorf("T outside sphere=%g; want 1", v) }
	if v:=d.Df.At(1, 1); v!=1 { t.Errorf("Df outside sphere=%g; want 1", v) }
	if v:=d.Dx.At(1, 1); v!=0 { t.Errorf("Dx outside sphere=%g; want 0", v) }

	// inside it does
	cx, cy:=24, 20
	if v:=d.T.At(cx, cy); v>=1 { t.Errorf("T at center=%g; want <1", v) }
	if v:=d.Df.At(cx, cy); v>=1 { t.Errorf("Df at center=%g; want <1", v) }

	// same seed reproduces the same exposures
	d2, err:=New(opts)
	if err!=nil { t.Fatalf("new: %v", err) }
	for i:=range d.Sample[0].Data {
		if d.Sample[0].Data[i]!=d2.Sample[0].Data[i] {
			t.Fatalf("same seed diverges at %d", i)
		}
	}
}

func TestDatasetValidation(t *testing.T) {
	if _, err:=New(Options{Width: 4, Height: 4, Exposures: 1}); err==nil {
		t.Errorf("tiny phantom accepted")
	}
	if _, err:=New(Options{Width: 32, Height: 32, Exposures: 0}); err==nil {
		t.Errorf("zero exposures accepted")
	}
	if _, err:=New(Options{Width: 32, Height: 32, Exposures: 1, Scatter: 1.5}); err==nil {
		t.Errorf("scatter above 1 accepted")
	}
}
