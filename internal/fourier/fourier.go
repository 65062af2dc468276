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


// Package fourier provides 2D FFTs and FFT-accelerated windowed
// cross-correlation on grids.
package fourier

import (
	"fmt"

	gofourier "gonum.org/v1/gonum/dsp/fourier"

	"github.com/mlnoga/specklight/internal/grid"
)

// A Plan holds factorized 1D FFTs and scratch buffers for repeated 2D
// transforms of a fixed size. Plans are not safe for concurrent use.
type Plan struct {
	width, height  int
	rowFFT, colFFT *gofourier.CmplxFFT
	rowIn          []complex128
	colIn, colOut  []complex128
}

// Creates a transform plan for width x height complex grids
func NewPlan(width, height int) *Plan {
	return &Plan{
		width : width,
		height: height,
		rowFFT: gofourier.NewCmplxFFT(width),
		colFFT: gofourier.NewCmplxFFT(height),
		rowIn : make([]complex128, width),
		colIn : make([]complex128, height),
		colOut: make([]complex128, height),
	}
}

// Computes the unnormalized 2D discrete Fourier transform of a in place.
// a holds width*height values in row-major order.
func (p *Plan) Forward(a []complex128) { p.transform(a, false) }

// Computes the unnormalized 2D inverse transform of a in place. A Forward
// followed by an Inverse multiplies the sequence by width*height; the
// caller divides by that factor.
func (p *Plan) Inverse(a []complex128) { p.transform(a, true) }

func (p *Plan) transform(a []complex128, inverse bool) {
	if len(a)!=p.width*p.height {
		panic(fmt.Sprintf("fourier: sequence length %d does not match %dx%d plan", len(a), p.width, p.height))
	}
	for y:=0; y<p.height; y++ {
		row:=a[y*p.width : (y+1)*p.width]
		copy(p.rowIn, row)
		if inverse {
			p.rowFFT.Sequence(row, p.rowIn)
		} else {
			p.rowFFT.Coefficients(row, p.rowIn)
		}
	}
	for x:=0; x<p.width; x++ {
		for y:=0; y<p.height; y++ { p.colIn[y]=a[y*p.width+x] }
		if inverse {
			p.colFFT.Sequence(p.colOut, p.colIn)
		} else {
			p.colFFT.Coefficients(p.colOut, p.colIn)
		}
		for y:=0; y<p.height; y++ { a[y*p.width+x]=p.colOut[y] }
	}
}

// Mode selects which part of the correlation surface is returned.
type Mode int

const (
	// Same returns a surface of the same size as the first operand,
	// centered on the full surface. Border values include zero padding.
	Same Mode = iota

	// Valid returns only the positions where the kernel overlaps the
	// operand completely, a surface of size (W-Wk+1) x (H-Hk+1).
	Valid
)

// A Correlator computes windowed cross-correlations of fixed operand and
// kernel sizes via zero-padded FFTs. The transform plans and frequency
// buffers are allocated once and reused across calls, so a long sweep over
// many pixels performs no per-call allocations. Correlators are not safe
// for concurrent use; create one per worker goroutine.
type Correlator struct {
	aw, ah int // operand size
	kw, kh int // kernel size
	fw, fh int // zero-padded transform size
	plan   *Plan
	fa, fk []complex128
}

// Creates a correlator for operands of size aw x ah and kernels of size kw x kh
func NewCorrelator(aw, ah, kw, kh int) *Correlator {
	fw, fh:=nextPow2(aw+kw-1), nextPow2(ah+kh-1)
	return &Correlator{
		aw: aw, ah: ah,
		kw: kw, kh: kh,
		fw: fw, fh: fh,
		plan: NewPlan(fw, fh),
		fa  : make([]complex128, fw*fh),
		fk  : make([]complex128, fw*fh),
	}
}

// Correlates operand a with kernel k, i.e. computes
// out[y,x] = sum_{j,i} k[j,i] * a[y+j-oy, x+i-ox] with the offset implied
// by the given mode, treating values outside a as zero. The result is
// written into dst if non-nil, else a new grid is allocated.
func (c *Correlator) Correlate(a, k *grid.Grid, mode Mode, dst *grid.Grid) (*grid.Grid, error) {
	if a.Width!=c.aw || a.Height!=c.ah {
		return nil, fmt.Errorf("correlate: operand is %dx%d; correlator expects %dx%d", a.Width, a.Height, c.aw, c.ah)
	}
	if k.Width!=c.kw || k.Height!=c.kh {
		return nil, fmt.Errorf("correlate: kernel is %dx%d; correlator expects %dx%d", k.Width, k.Height, c.kw, c.kh)
	}
	outW, outH:=c.aw, c.ah
	offX, offY:=c.kw/2, c.kh/2
	if mode==Valid {
		outW, outH=c.aw-c.kw+1, c.ah-c.kh+1
		offX, offY=c.kw-1, c.kh-1
		if outW<1 || outH<1 {
			return nil, fmt.Errorf("correlate: %dx%d kernel exceeds %dx%d operand in valid mode", c.kw, c.kh, c.aw, c.ah)
		}
	}
	if dst==nil {
		dst=grid.New(outW, outH)
	} else if dst.Width!=outW || dst.Height!=outH {
		return nil, fmt.Errorf("correlate: destination is %dx%d; want %dx%d", dst.Width, dst.Height, outW, outH)
	}

	// embed the operand and the doubly flipped kernel in zero-padded
	// complex grids, turning correlation into plain convolution
	for i:=range c.fa { c.fa[i]=0 }
	for i:=range c.fk { c.fk[i]=0 }
	for y:=0; y<c.ah; y++ {
		src, d:=y*c.aw, y*c.fw
		for x:=0; x<c.aw; x++ { c.fa[d+x]=complex(a.Data[src+x], 0) }
	}
	for y:=0; y<c.kh; y++ {
		src, d:=(c.kh-1-y)*c.kw, y*c.fw
		for x:=0; x<c.kw; x++ { c.fk[d+x]=complex(k.Data[src+c.kw-1-x], 0) }
	}

	c.plan.Forward(c.fa)
	c.plan.Forward(c.fk)
	for i:=range c.fa { c.fa[i]*=c.fk[i] }
	c.plan.Inverse(c.fa)

	scale:=1.0/float64(c.fw*c.fh)
	for y:=0; y<outH; y++ {
		src, d:=(y+offY)*c.fw+offX, y*outW
		for x:=0; x<outW; x++ {
			dst.Data[d+x]=real(c.fa[src+x])*scale
		}
	}
	return dst, nil
}

// Correlates a with k in a single shot, building a one-off correlator.
// Prefer an explicit Correlator when correlating many grids of equal size.
func Correlate(a, k *grid.Grid, mode Mode) (*grid.Grid, error) {
	return NewCorrelator(a.Width, a.Height, k.Width, k.Height).Correlate(a, k, mode, nil)
}

// Returns the smallest power of two that is >= n
func nextPow2(n int) int {
	p:=1
	for p<n { p<<=1 }
	return p
}
