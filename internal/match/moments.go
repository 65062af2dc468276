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
	"github.com/mlnoga/specklight/internal/fourier"
	"github.com/mlnoga/specklight/internal/grid"
)

// Precomputed windowed moment maps. They are built once per run from full
// exposure stacks and only read during the sweep, so all workers share them.
type moments struct {
	l1 *grid.Grid // windowed sum of squared sample values per pixel
	l3 *grid.Grid // windowed sum of squared reference values per pixel
	l2 float64    // squared mean reference level times exposure count, dark-field only
	l4 *grid.Grid // windowed sample sums scaled by the mean level, dark-field only
	l6 *grid.Grid // windowed reference sums scaled by the mean level, dark-field only
}

// Builds the moment maps for the given stacks and analysis window.
// Dark-field moments are skipped when the dark-field term is disabled.
func buildMoments(sample, reference []*grid.Grid, window *grid.Grid, darkField bool) (*moments, error) {
	w, h:=sample[0].Width, sample[0].Height
	s2, r2:=grid.New(w, h), grid.New(w, h)
	for k:=range sample {
		for i, v:=range sample[k].Data    { s2.Data[i]+=v*v }
		for i, v:=range reference[k].Data { r2.Data[i]+=v*v }
	}

	co:=fourier.NewCorrelator(w, h, window.Width, window.Height)
	l1, err:=co.Correlate(s2, window, fourier.Same, nil)
	if err!=nil { return nil, err }
	l3, err:=co.Correlate(r2, window, fourier.Same, nil)
	if err!=nil { return nil, err }
	m:=&moments{l1: l1, l3: l3}
	if !darkField { return m, nil }

	s1, r1:=grid.New(w, h), grid.New(w, h)
	for k:=range sample {
		for i, v:=range sample[k].Data    { s1.Data[i]+=v }
		for i, v:=range reference[k].Data { r1.Data[i]+=v }
	}
	nr:=float64(len(reference))
	im:=r1.Stats().Mean/nr // mean reference level per exposure
	m.l2=im*im*nr
	if m.l4, err=co.Correlate(s1, window, fourier.Same, nil); err!=nil { return nil, err }
	if m.l6, err=co.Correlate(r1, window, fourier.Same, nil); err!=nil { return nil, err }
	for i:=range m.l4.Data { m.l4.Data[i]*=im }
	for i:=range m.l6.Data { m.l6.Data[i]*=im }
	return m, nil
}
