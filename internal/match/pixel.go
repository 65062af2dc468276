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


package match

import (
	"math"

	"github.com/mlnoga/specklight/internal/fourier"
	"github.com/mlnoga/specklight/internal/grid"
	"github.com/mlnoga/specklight/internal/quadfit"
)

// Matching results for a single output cell
type cell struct {
	dy, dx   float64 // refined shift of the reference window, in pixels
	t        float64 // transmission factor
	df       float64 // dark-field visibility ratio, 0 when disabled
	f        float64 // cost surface residual at the winning shift
	singular bool    // solve was degenerate, outputs are NaN
	fellBack bool    // sub-pixel refinement fell back to the integer shift
}

// Per-worker sweep state. Each worker goroutine owns one sweeper with its
// fixed-size FFT correlator and scratch grids, reused across all cells, so
// the inner loop stays free of allocations.
type sweeper struct {
	sample    []*grid.Grid
	reference []*grid.Grid
	window    *grid.Grid
	mom       *moments
	darkField bool
	nw, ns    int
	subPix    int

	co    *fourier.Correlator
	patch *grid.Grid // reference patch around the cell, (2*(nw+ns)+1)^2
	wsamp *grid.Grid // window-weighted sample values, (2*nw+1)^2
	ccs   *grid.Grid // single-exposure correlation surface, (2*ns+1)^2
	t5    *grid.Grid // correlation surface summed over exposures
	d     *grid.Grid // weighted least-squares cost surface
	box   *grid.Grid // sub-pixel fit scratch
}

func newSweeper(sample, reference []*grid.Grid, window *grid.Grid, mom *moments, cfg Config, subPix int) *sweeper {
	nw, ns:=cfg.WindowRadius, cfg.MaxShift
	p, m, s:=2*(nw+ns)+1, 2*nw+1, 2*ns+1
	return &sweeper{
		sample   : sample,
		reference: reference,
		window   : window,
		mom      : mom,
		darkField: cfg.DarkField,
		nw       : nw,
		ns       : ns,
		subPix   : subPix,
		co       : fourier.NewCorrelator(p, p, m, m),
		patch    : grid.New(p, p),
		wsamp    : grid.New(m, m),
		ccs      : grid.New(s, s),
		t5       : grid.New(s, s),
		d        : grid.New(s, s),
		box      : grid.New(2*subPix+1, 2*subPix+1),
	}
}

// Matches the windows around input pixel (x,y), which must lie at least
// nw+ns pixels away from every border. Builds the correlation surface over
// all candidate shifts, solves the local least-squares model per shift,
// and refines the best shift to sub-pixel precision.
func (s *sweeper) matchPixel(x, y int) (cell, error) {
	width:=s.sample[0].Width
	nw, ns:=s.nw, s.ns
	m, p, sdim:=2*nw+1, 2*(nw+ns)+1, 2*ns+1

	// correlation surface against the reference, summed over exposures
	s.t5.Fill(0)
	for k:=range s.sample {
		samp:=s.sample[k]
		for j:=0; j<m; j++ {
			src:=(y-nw+j)*width+x-nw
			dst:=j*m
			for i:=0; i<m; i++ {
				s.wsamp.Data[dst+i]=s.window.Data[dst+i]*samp.Data[src+i]
			}
		}
		s.reference[k].SubGrid(x-nw-ns, y-nw-ns, p, p, s.patch)
		if _, err:=s.co.Correlate(s.patch, s.wsamp, fourier.Valid, s.ccs); err!=nil {
			return cell{}, err
		}
		for i:=range s.t5.Data { s.t5.Data[i]+=s.ccs.Data[i] }
	}

	// solve the least-squares model at every candidate shift
	t1:=s.mom.l1.Data[y*width+x]
	t2:=s.mom.l2
	t4:=0.0
	if s.darkField { t4=s.mom.l4.Data[y*width+x] }
	sing:=false
solve:
	for vy:=0; vy<sdim; vy++ {
		mrow:=(y-ns+vy)*width+x-ns
		drow:=vy*sdim
		for vx:=0; vx<sdim; vx++ {
			t3:=s.mom.l3.Data[mrow+vx]
			t5:=s.t5.Data[drow+vx]
			if s.darkField {
				t6:=s.mom.l6.Data[mrow+vx]
				denom:=t2*t3-t6*t6
				if denom==0 { sing=true; break solve }
				kk:=(t2*t5-t4*t6)/denom
				beta:=(t3*t4-t5*t6)/denom
				s.d.Data[drow+vx]=t1+beta*beta*t2+kk*kk*t3-2*beta*t4-2*kk*t5+2*beta*kk*t6
			} else {
				if t3==0 { sing=true; break solve }
				kk:=t5/t3
				s.d.Data[drow+vx]=t1+kk*kk*t3-2*kk*t5
			}
		}
	}
	if sing {
		nan:=math.NaN()
		return cell{dy: nan, dx: nan, t: nan, df: nan, f: nan, singular: true}, nil
	}

	// sub-pixel minimum of the cost surface, clamped to the search range
	sy, sx, refined:=quadfit.SubPixMin(s.d, s.subPix, s.box)
	if sy<0 { sy=0 } else if sy>float64(sdim-1) { sy=float64(sdim-1) }
	if sx<0 { sx=0 } else if sx>float64(sdim-1) { sx=float64(sdim-1) }
	isy, isx:=int(math.Round(sy)), int(math.Round(sx))

	// transmission and dark-field from the model at the winning shift
	t3:=s.mom.l3.Data[(y-ns+isy)*width+x-ns+isx]
	t5:=s.t5.Data[isy*sdim+isx]
	var kk, beta float64
	if s.darkField {
		t6:=s.mom.l6.Data[(y-ns+isy)*width+x-ns+isx]
		denom:=t2*t3-t6*t6
		kk=(t2*t5-t4*t6)/denom
		beta=(t3*t4-t5*t6)/denom
	} else {
		kk=t5/t3
	}
	a:=beta+kk
	df:=0.0
	if s.darkField { df=kk/a }

	return cell{
		dy      : sy-float64(ns),
		dx      : sx-float64(ns),
		t       : a,
		df      : df,
		f       : s.d.Data[isy*sdim+isx],
		fellBack: !refined,
	}, nil
}
