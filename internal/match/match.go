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


// Package match recovers transmission, refraction and dark-field maps from
// speckle exposure stacks by windowed least-squares matching. For every
// cell of a decimated output grid, a local analysis window of the sample
// stack is compared against reference windows displaced over a discrete
// search range, the affine model sample = t*reference + offset is solved
// per displacement from precomputed moment maps, and the minimum of the
// resulting cost surface is refined to sub-pixel precision.
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/pbnjay/memory"

	"github.com/mlnoga/specklight/internal/grid"
)

var (
	// ErrShapeMismatch reports stacks whose exposures disagree in size or count.
	ErrShapeMismatch = errors.New("stack shapes do not match")

	// ErrDegenerateGrid reports inputs too small for the window and search margins.
	ErrDegenerateGrid = errors.New("window and search margins leave no output cells")
)

// Config holds the matching parameters.
type Config struct {
	WindowRadius int  `json:"windowRadius"` // half-width of the Hamming analysis window
	MaxShift     int  `json:"maxShift"`     // half-width of the displacement search range
	Step         int  `json:"step"`         // output grid stride in input pixels
	DarkField    bool `json:"darkField"`    // solve for a dark-field level alongside transmission
	SubPixWidth  int  `json:"subPixWidth"`  // half-width of the sub-pixel fit box, 0 selects 1
	Verbose      bool `json:"verbose"`      // progress reporting on the context log
}

// Context holds the execution environment for a matching run.
type Context struct {
	Log        io.Writer // sink for progress and warnings
	MemoryMB   int       // assumed amount of physical memory, in MB
	MaxThreads int       // number of parallel sweep workers
}

// Creates an execution context with the given log sink. Zero values for
// memoryMB and maxThreads select the physical memory size and the number
// of processors.
func NewContext(logWriter io.Writer, memoryMB, maxThreads int) *Context {
	if memoryMB<=0   { memoryMB=int(memory.TotalMemory()/1024/1024) }
	if maxThreads<=0 { maxThreads=runtime.GOMAXPROCS(0) }
	return &Context{Log: logWriter, MemoryMB: memoryMB, MaxThreads: maxThreads}
}

// Result holds the five output maps of a matching run. Output cell (ox,oy)
// describes the input pixel (OffsetX+ox*Step, OffsetY+oy*Step).
type Result struct {
	T  *grid.Grid // transmission factor
	Dx *grid.Grid // horizontal refraction shift, in pixels
	Dy *grid.Grid // vertical refraction shift, in pixels
	Df *grid.Grid // dark-field visibility ratio, zero when disabled
	F  *grid.Grid // residual of the least-squares fit at the winning shift

	OffsetX, OffsetY int // input coordinates of output cell (0,0)
	Step             int // input pixels per output cell

	Singular  int // cells flagged NaN because the model solve was degenerate
	Fallbacks int // cells whose sub-pixel refinement fell back to the integer shift
}

// Returns the input x coordinate described by output column ox
func (r *Result) InputX(ox int) int { return r.OffsetX+ox*r.Step }

// Returns the input y coordinate described by output row oy
func (r *Result) InputY(oy int) int { return r.OffsetY+oy*r.Step }

// Matches the sample stack against the reference stack and returns the
// transmission, refraction, dark-field and residual maps. Both stacks must
// hold the same number of equally sized exposures. The sweep runs on
// c.MaxThreads workers; canceling ctx stops it between output rows.
func Match(ctx context.Context, sample, reference []*grid.Grid, cfg Config, c *Context) (*Result, error) {
	if cfg.WindowRadius<0 { return nil, fmt.Errorf("match: window radius %d is negative", cfg.WindowRadius) }
	if cfg.MaxShift<0     { return nil, fmt.Errorf("match: max shift %d is negative", cfg.MaxShift) }
	if cfg.Step<1         { return nil, fmt.Errorf("match: step %d is below 1", cfg.Step) }
	subPix:=cfg.SubPixWidth
	if subPix<1 { subPix=1 }

	if len(sample)==0 || len(reference)==0 {
		return nil, fmt.Errorf("match: empty exposure stack: %w", ErrShapeMismatch)
	}
	if len(sample)!=len(reference) {
		return nil, fmt.Errorf("match: %d sample vs %d reference exposures: %w", len(sample), len(reference), ErrShapeMismatch)
	}
	w, h:=sample[0].Width, sample[0].Height
	for i,g:=range sample {
		if !g.EqualShape(sample[0]) {
			return nil, fmt.Errorf("match: sample exposure %d is %dx%d, first is %dx%d: %w", i, g.Width, g.Height, w, h, ErrShapeMismatch)
		}
	}
	for i,g:=range reference {
		if !g.EqualShape(sample[0]) {
			return nil, fmt.Errorf("match: reference exposure %d is %dx%d, sample is %dx%d: %w", i, g.Width, g.Height, w, h, ErrShapeMismatch)
		}
	}

	margin:=cfg.MaxShift+cfg.WindowRadius
	ys:=outputCoords(margin, h-margin-1, cfg.Step)
	xs:=outputCoords(margin, w-margin-1, cfg.Step)
	if len(ys)==0 || len(xs)==0 {
		return nil, fmt.Errorf("match: %dx%d input, margin %d, step %d: %w", w, h, margin, cfg.Step, ErrDegenerateGrid)
	}
	rows, cols:=len(ys), len(xs)

	if cfg.Verbose {
		fmt.Fprintf(c.Log, "Matching %d exposure(s) of %dx%d pixels: window ±%d, shifts ±%d, step %d -> %dx%d cells on %d threads\n",
			len(sample), w, h, cfg.WindowRadius, cfg.MaxShift, cfg.Step, cols, rows, c.MaxThreads)
	}
	estMB:=(len(sample)+len(reference)+6)*w*h*8/1024/1024
	if estMB>c.MemoryMB {
		fmt.Fprintf(c.Log, "Warning: estimated working set of %d MB exceeds assumed %d MB of memory\n", estMB, c.MemoryMB)
	}

	window:=grid.HammingWindow(cfg.WindowRadius)
	mom, err:=buildMoments(sample, reference, window, cfg.DarkField)
	if err!=nil { return nil, err }

	res:=&Result{
		T: grid.New(cols, rows), Dx: grid.New(cols, rows), Dy: grid.New(cols, rows),
		Df: grid.New(cols, rows), F: grid.New(cols, rows),
		OffsetX: margin, OffsetY: margin, Step: cfg.Step,
	}

	numBatches:=8*c.MaxThreads
	if numBatches>rows { numBatches=rows }
	batchRows:=(rows+numBatches-1)/numBatches

	var mu sync.Mutex // guards the progress count, counters and firstErr
	rowsDone, singular, fallbacks:=0, 0, 0
	var firstErr error

	sem:=make(chan bool, c.MaxThreads)
	for lower:=0; lower<rows; lower+=batchRows {
		upper:=lower+batchRows
		if upper>rows { upper=rows }
		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()
			sw:=newSweeper(sample, reference, window, mom, cfg, subPix)
			localSing, localFall:=0, 0
			for r:=lower; r<upper; r++ {
				if ctx.Err()!=nil { break }
				y:=ys[r]
				out:=r*cols
				for ci, x:=range xs {
					cl, err:=sw.matchPixel(x, y)
					if err!=nil {
						mu.Lock()
						if firstErr==nil { firstErr=err }
						mu.Unlock()
						return
					}
					res.T.Data[out+ci], res.Dx.Data[out+ci], res.Dy.Data[out+ci]=cl.t, cl.dx, cl.dy
					res.Df.Data[out+ci], res.F.Data[out+ci]=cl.df, cl.f
					if cl.singular { localSing++ }
					if cl.fellBack { localFall++ }
				}
				mu.Lock()
				rowsDone++
				if cfg.Verbose { fmt.Fprintf(c.Log, "\r%d%%", rowsDone*100/rows) }
				mu.Unlock()
			}
			mu.Lock()
			singular+=localSing
			fallbacks+=localFall
			mu.Unlock()
		}(lower, upper)
	}
	for i:=0; i<cap(sem); i++ { sem <- true }
	if cfg.Verbose { fmt.Fprintf(c.Log, "\r") }

	if firstErr!=nil { return nil, firstErr }
	if err:=ctx.Err(); err!=nil { return nil, err }
	res.Singular, res.Fallbacks=singular, fallbacks
	return res, nil
}

// Returns the window center coordinates lo, lo+step, ... below hi
func outputCoords(lo, hi, step int) []int {
	if hi<=lo { return nil }
	cs:=make([]int, 0, (hi-lo+step-1)/step)
	for v:=lo; v<hi; v+=step { cs=append(cs, v) }
	return cs
}
