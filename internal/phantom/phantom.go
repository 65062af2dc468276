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


// Package phantom generates synthetic speckle exposure stacks with known
// ground truth, for validating and demonstrating the matcher. A simulated
// sphere refracts the speckle pattern towards its rim, absorbs part of the
// beam and reduces speckle visibility in proportion to its thickness.
package phantom

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/specklight/internal/grid"
)

// Options describes a synthetic dataset.
type Options struct {
	Width     int     `json:"width"`     // exposure width in pixels
	Height    int     `json:"height"`    // exposure height in pixels
	Exposures int     `json:"exposures"` // number of sample/reference exposure pairs
	Grain     float64 `json:"grain"`     // speckle grain sigma in pixels
	Radius    float64 `json:"radius"`    // projected sphere radius in pixels
	Bend      float64 `json:"bend"`      // refraction shift scale in pixels
	Absorb    float64 `json:"absorb"`    // absorption at unit thickness, transmission=exp(-absorb*thickness)
	Scatter   float64 `json:"scatter"`   // visibility loss at unit thickness, in [0,1]
	Noise     float64 `json:"noise"`     // additive gaussian noise sigma
	Seed      uint32  `json:"seed"`      // random seed, 0 draws one at random
}

// A Dataset holds simulated exposure stacks together with the ground truth
// maps they were generated from, at full input resolution.
type Dataset struct {
	Sample    []*grid.Grid
	Reference []*grid.Grid
	Dx, Dy    *grid.Grid // true refraction shifts in pixels
	T         *grid.Grid // true transmission factor
	Df        *grid.Grid // true visibility ratio
	Seed      uint32     // seed actually used
}

// Generates a synthetic dataset according to the given options.
func New(opts Options) (*Dataset, error) {
	if opts.Width<8 || opts.Height<8 {
		return nil, fmt.Errorf("phantom: %dx%d exposures are too small", opts.Width, opts.Height)
	}
	if opts.Exposures<1 {
		return nil, fmt.Errorf("phantom: %d exposures is below 1", opts.Exposures)
	}
	if opts.Scatter<0 || opts.Scatter>1 {
		return nil, fmt.Errorf("phantom: scatter %g is outside [0,1]", opts.Scatter)
	}
	if opts.Seed==0 { opts.Seed=fastrand.Uint32() | 1 }

	w, h:=opts.Width, opts.Height
	tau:=thickness(w, h, opts.Radius)
	d:=&Dataset{
		Dx: grid.New(w, h), Dy: grid.New(w, h),
		T: grid.New(w, h), Df: grid.New(w, h),
		Seed: opts.Seed,
	}
	// refraction displaces the pattern along the thickness gradient
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			xm, xp:=x-1, x+1
			ym, yp:=y-1, y+1
			if xm<0 { xm=0 }
			if ym<0 { ym=0 }
			if xp>w-1 { xp=w-1 }
			if yp>h-1 { yp=h-1 }
			d.Dx.Set(x, y, opts.Bend*0.5*(tau.At(xp, y)-tau.At(xm, y)))
			d.Dy.Set(x, y, opts.Bend*0.5*(tau.At(x, yp)-tau.At(x, ym)))
		}
	}
	for i, v:=range tau.Data {
		d.T.Data[i]=math.Exp(-opts.Absorb*v)
		d.Df.Data[i]=1-opts.Scatter*v
	}

	rng:=fastrand.RNG{}
	rng.Seed(opts.Seed)
	for k:=0; k<opts.Exposures; k++ {
		ref:=Speckle(w, h, opts.Grain, opts.Seed+uint32(k)*2654435761)
		warped:=Warp(ref, d.Dy, d.Dx)
		samp:=grid.New(w, h)
		for i:=range samp.Data {
			v:=d.Df.Data[i]
			samp.Data[i]=d.T.Data[i]*((1-v)+v*warped.Data[i])
		}
		if opts.Noise>0 {
			for i:=range samp.Data { samp.Data[i]+=opts.Noise*gaussian(&rng) }
			for i:=range ref.Data  { ref.Data[i]+=opts.Noise*gaussian(&rng) }
		}
		d.Sample=append(d.Sample, samp)
		d.Reference=append(d.Reference, ref)
	}
	return d, nil
}

// Generates a speckle pattern of unit mean: uniform noise blurred to the
// given grain size. A zero seed draws a random sequence.
func Speckle(width, height int, grain float64, seed uint32) *grid.Grid {
	rng:=fastrand.RNG{}
	rng.Seed(seed)
	g:=grid.New(width, height)
	for i:=range g.Data {
		g.Data[i]=float64(rng.Uint32n(1<<20))/float64(1<<20)
	}
	if grain>0 {
		blurWrap(g, gaussianKernel1D(grain))
	}
	mean:=g.Stats().Mean
	for i:=range g.Data { g.Data[i]/=mean }
	return g
}

// Returns a copy of the grid resampled at positions displaced by (dy,dx),
// with bilinear interpolation and circular wraparound. Matching a shifted
// copy against the original recovers exactly (dy,dx).
func Shift(g *grid.Grid, dy, dx float64) *grid.Grid {
	fy, fx:=math.Floor(dy), math.Floor(dx)
	ry, rx:=dy-fy, dx-fx
	iy, ix:=int(fy), int(fx)
	wy:=[2]float64{1-ry, ry}
	wx:=[2]float64{1-rx, rx}
	w, h:=g.Width, g.Height
	out:=grid.New(w, h)
	for cy:=0; cy<2; cy++ {
		for cx:=0; cx<2; cx++ {
			wt:=wy[cy]*wx[cx]
			if wt==0 { continue }
			for y:=0; y<h; y++ {
				srow:=wrap(y+iy+cy, h)*w
				drow:=y*w
				for x:=0; x<w; x++ {
					out.Data[drow+x]+=wt*g.Data[srow+wrap(x+ix+cx, w)]
				}
			}
		}
	}
	return out
}

// Resamples the grid at per-pixel displaced positions, with bilinear
// interpolation and circular wraparound: out(p) = g(p + (dy(p),dx(p))).
func Warp(g, dy, dx *grid.Grid) *grid.Grid {
	out:=grid.New(g.Width, g.Height)
	for y:=0; y<g.Height; y++ {
		row:=y*g.Width
		for x:=0; x<g.Width; x++ {
			out.Data[row+x]=bilinearWrap(g, float64(y)+dy.Data[row+x], float64(x)+dx.Data[row+x])
		}
	}
	return out
}

func bilinearWrap(g *grid.Grid, y, x float64) float64 {
	fy, fx:=math.Floor(y), math.Floor(x)
	ry, rx:=y-fy, x-fx
	y0:=wrap(int(fy), g.Height)
	y1:=wrap(int(fy)+1, g.Height)
	x0:=wrap(int(fx), g.Width)
	x1:=wrap(int(fx)+1, g.Width)
	return (1-ry)*((1-rx)*g.At(x0, y0)+rx*g.At(x1, y0))+
		ry*((1-rx)*g.At(x0, y1)+rx*g.At(x1, y1))
}

func wrap(a, n int) int {
	a%=n
	if a<0 { a+=n }
	return a
}

// Projected thickness of a centered sphere, normalized to [0,1]
func thickness(w, h int, radius float64) *grid.Grid {
	t:=grid.New(w, h)
	if radius<=0 { return t }
	cx, cy:=0.5*float64(w-1), 0.5*float64(h-1)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			dx, dy:=float64(x)-cx, float64(y)-cy
			if r2:=dx*dx+dy*dy; r2<radius*radius {
				t.Set(x, y, math.Sqrt(radius*radius-r2)/radius)
			}
		}
	}
	return t
}

// Returns a 1D gaussian kernel of the given sigma, each tap integrating
// the density over one pixel via the error function, normalized to unit sum
func gaussianKernel1D(sigma float64) []float64 {
	radius:=int(math.Ceil(3*sigma))
	if radius<1 { radius=1 }
	k:=make([]float64, 2*radius+1)
	s:=sigma*math.Sqrt2
	sum:=0.0
	for i:=range k {
		a, b:=float64(i-radius)-0.5, float64(i-radius)+0.5
		v:=0.5*(math.Erf(b/s)-math.Erf(a/s))
		k[i]=v
		sum+=v
	}
	for i:=range k { k[i]/=sum }
	return k
}

// Separable blur with circular wraparound, in place
func blurWrap(g *grid.Grid, kernel []float64) {
	radius:=(len(kernel)-1)/2
	w, h:=g.Width, g.Height
	tmp:=make([]float64, w*h)
	for y:=0; y<h; y++ {
		row:=y*w
		for x:=0; x<w; x++ {
			sum:=0.0
			for i, kv:=range kernel { sum+=kv*g.Data[row+wrap(x+i-radius, w)] }
			tmp[row+x]=sum
		}
	}
	for x:=0; x<w; x++ {
		for y:=0; y<h; y++ {
			sum:=0.0
			for i, kv:=range kernel { sum+=kv*tmp[wrap(y+i-radius, h)*w+x] }
			g.Data[y*w+x]=sum
		}
	}
}

// Standard gaussian deviate by the Box-Muller transform
func gaussian(rng *fastrand.RNG) float64 {
	u1:=(float64(rng.Uint32n(1<<24))+1)/float64(1<<24)
	u2:=float64(rng.Uint32n(1<<24))/float64(1<<24)
	return math.Sqrt(-2*math.Log(u1))*math.Cos(2*math.Pi*u2)
}
