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


package fourier

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/specklight/internal/grid"
)

func randomGrid(w, h int, rng *fastrand.RNG) *grid.Grid {
	g:=grid.New(w, h)
	for i:=range g.Data {
		g.Data[i]=float64(rng.Uint32n(100000))/100000.0
	}
	return g
}

// Direct sliding-window correlation, the reference for the FFT path.
// Positions outside the operand contribute zero.
func naiveCorrelate(a, k *grid.Grid, mode Mode) *grid.Grid {
	outW, outH:=a.Width, a.Height
	offX, offY:=(k.Width-1)-k.Width/2, (k.Height-1)-k.Height/2
	if mode==Valid {
		outW, outH=a.Width-k.Width+1, a.Height-k.Height+1
		offX, offY=0, 0
	}
	out:=grid.New(outW, outH)
	for y:=0; y<outH; y++ {
		for x:=0; x<outW; x++ {
			sum:=0.0
			for j:=0; j<k.Height; j++ {
				ay:=y-offY+j
				if ay<0 || ay>=a.Height { continue }
				for i:=0; i<k.Width; i++ {
					ax:=x-offX+i
					if ax<0 || ax>=a.Width { continue }
					sum+=k.At(i, j)*a.At(ax, ay)
				}
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

func maxAbsDiff(a, b *grid.Grid) float64 {
	max:=0.0
	for i:=range a.Data {
		if d:=math.Abs(a.Data[i]-b.Data[i]); d>max { max=d }
	}
	return max
}

func TestCorrelateMatchesNaive(t *testing.T) {
	rng:=fastrand.RNG{}
	rng.Seed(42)
	cases:=[]struct{ aw, ah, kw, kh int }{
		{16, 13, 7, 5},
		{13, 16, 5, 7},
		{21, 21, 11, 11},
		{9, 9, 9, 9},
		{32, 8, 1, 1},
	}
	for _,c:=range cases {
		a:=randomGrid(c.aw, c.ah, &rng)
		k:=randomGrid(c.kw, c.kh, &rng)
		for _,mode:=range []Mode{Same, Valid} {
			got, err:=Correlate(a, k, mode)
			if err!=nil {
				t.Errorf("%dx%d kernel %dx%d mode %d: %v", c.aw, c.ah, c.kw, c.kh, mode, err)
				continue
			}
			want:=naiveCorrelate(a, k, mode)
			if !got.EqualShape(want) {
				t.Errorf("%dx%d kernel %dx%d mode %d: shape %dx%d; want %dx%d",
					c.aw, c.ah, c.kw, c.kh, mode, got.Width, got.Height, want.Width, want.Height)
				continue
			}
			if d:=maxAbsDiff(got, want); d>1e-9 {
				t.Errorf("%dx%d kernel %dx%d mode %d: max deviation %g from direct correlation", c.aw, c.ah, c.kw, c.kh, mode, d)
			}
		}
	}
}

func TestCorrelateImpulse(t *testing.T) {
	rng:=fastrand.RNG{}
	rng.Seed(7)
	a:=randomGrid(17, 12, &rng)

	// a centered unit impulse kernel must reproduce the operand exactly
	k:=grid.New(5, 5)
	k.Set(2, 2, 1)
	got, err:=Correlate(a, k, Same)
	if err!=nil { t.Fatalf("correlate: %v", err) }
	if d:=maxAbsDiff(got, a); d>1e-10 {
		t.Errorf("impulse correlation deviates by %g from identity", d)
	}
}

func TestCorrelatorReuse(t *testing.T) {
	rng:=fastrand.RNG{}
	rng.Seed(99)
	co:=NewCorrelator(15, 11, 5, 5)
	dst:=grid.New(11, 7)
	for run:=0; run<3; run++ {
		a:=randomGrid(15, 11, &rng)
		k:=randomGrid(5, 5, &rng)
		got, err:=co.Correlate(a, k, Valid, dst)
		if err!=nil { t.Fatalf("run %d: %v", run, err) }
		if got!=dst { t.Fatalf("run %d: correlator did not reuse destination", run) }
		want:=naiveCorrelate(a, k, Valid)
		if d:=maxAbsDiff(got, want); d>1e-9 {
			t.Errorf("run %d: max deviation %g from direct correlation", run, d)
		}
	}
}

func TestCorrelateShapeErrors(t *testing.T) {
	co:=NewCorrelator(8, 8, 3, 3)
	if _, err:=co.Correlate(grid.New(9, 8), grid.New(3, 3), Same, nil); err==nil {
		t.Errorf("mismatched operand accepted")
	}
	if _, err:=co.Correlate(grid.New(8, 8), grid.New(5, 3), Same, nil); err==nil {
		t.Errorf("mismatched kernel accepted")
	}
	if _, err:=Correlate(grid.New(4, 4), grid.New(6, 6), Valid); err==nil {
		t.Errorf("oversized kernel accepted in valid mode")
	}
}

func TestPlanRoundTrip(t *testing.T) {
	rng:=fastrand.RNG{}
	rng.Seed(5)
	w, h:=12, 10 // deliberately not a power of two
	a:=make([]complex128, w*h)
	orig:=make([]complex128, w*h)
	for i:=range a {
		a[i]=complex(float64(rng.Uint32n(1000))/1000.0, float64(rng.Uint32n(1000))/1000.0)
	}
	copy(orig, a)

	p:=NewPlan(w, h)
	p.Forward(a)
	p.Inverse(a)
	scale:=1.0/float64(w*h)
	for i:=range a {
		if d:=cmplx.Abs(a[i]*complex(scale, 0)-orig[i]); d>1e-12 {
			t.Fatalf("round trip deviates by %g at %d", d, i)
		}
	}
}
