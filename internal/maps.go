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


package internal

import (
	"fmt"
	"io"
	"math"

	"github.com/mlnoga/specklight/internal/fits"
	"github.com/mlnoga/specklight/internal/grid"
	"github.com/mlnoga/specklight/internal/match"
	"github.com/mlnoga/specklight/internal/phantom"
)

const jpgQuality = 95

// Saves the five output maps of a matching run as FITS files named
// prefix_t, _dx, _dy, _df and _f, stamping the output grid geometry into
// the headers. Non-blank jpgPrefix and tiffPrefix select additional 8-bit
// JPEG and 16-bit TIFF renderings: signed maps use a diverging palette
// centered on zero, the others a grayscale ramp.
func SaveMaps(res *match.Result, fitsPrefix, jpgPrefix, tiffPrefix string, logWriter io.Writer) error {
	maps:=[]struct{
		Name      string
		Grid      *grid.Grid
		Diverging bool
	}{
		{"t",  res.T,  false},
		{"dx", res.Dx, true},
		{"dy", res.Dy, true},
		{"df", res.Df, false},
		{"f",  res.F,  false},
	}
	for _,m:=range maps {
		if fitsPrefix!="" {
			img:=fits.NewImageFromGrid(m.Grid)
			img.Header.Ints["OFFSETX"]=res.OffsetX
			img.Header.Ints["OFFSETY"]=res.OffsetY
			img.Header.Ints["STEP"]=res.Step
			img.Header.Strings["MAPTYPE"]=m.Name
			fileName:=fitsPrefix+"_"+m.Name+".fits"
			fmt.Fprintf(logWriter, "Writing %s map to %s ...\n", m.Name, fileName)
			if err:=img.WriteFile(fileName); err!=nil { return err }
		}
		if err:=exportGrid(m.Grid, m.Name, jpgPrefix, tiffPrefix, m.Diverging, logWriter); err!=nil {
			return err
		}
	}
	return nil
}

// Saves an integrated phase map as prefix_phi.fits, with optional JPEG
// and TIFF renderings like SaveMaps
func SavePhase(phi *grid.Grid, fitsPrefix, jpgPrefix, tiffPrefix string, logWriter io.Writer) error {
	if fitsPrefix!="" {
		img:=fits.NewImageFromGrid(phi)
		img.Header.Strings["MAPTYPE"]="phi"
		fileName:=fitsPrefix+"_phi.fits"
		fmt.Fprintf(logWriter, "Writing phi map to %s ...\n", fileName)
		if err:=img.WriteFile(fileName); err!=nil { return err }
	}
	return exportGrid(phi, "phi", jpgPrefix, tiffPrefix, false, logWriter)
}

// Saves a synthetic dataset: the sample and reference exposure stacks as
// prefix_sampNN and prefix_refNN, and the ground truth maps they were
// generated from as prefix_true_t, _dx, _dy and _df.
func SavePhantom(ds *phantom.Dataset, prefix string, logWriter io.Writer) error {
	for i,g:=range ds.Sample {
		if err:=savePhantomGrid(g, fmt.Sprintf("%s_samp%02d.fits", prefix, i), ds.Seed, logWriter); err!=nil {
			return err
		}
	}
	for i,g:=range ds.Reference {
		if err:=savePhantomGrid(g, fmt.Sprintf("%s_ref%02d.fits", prefix, i), ds.Seed, logWriter); err!=nil {
			return err
		}
	}
	truths:=[]struct{
		Name string
		Grid *grid.Grid
	}{
		{"t",  ds.T},
		{"dx", ds.Dx},
		{"dy", ds.Dy},
		{"df", ds.Df},
	}
	for _,tr:=range truths {
		if err:=savePhantomGrid(tr.Grid, fmt.Sprintf("%s_true_%s.fits", prefix, tr.Name), ds.Seed, logWriter); err!=nil {
			return err
		}
	}
	return nil
}

func savePhantomGrid(g *grid.Grid, fileName string, seed uint32, logWriter io.Writer) error {
	img:=fits.NewImageFromGrid(g)
	img.Header.Ints["SEED"]=int(seed)
	fmt.Fprintf(logWriter, "Writing %dx%d pixels to %s ...\n", g.Width, g.Height, fileName)
	return img.WriteFile(fileName)
}

// Renders a map into the optional preview formats, picking display ranges
// from the map statistics
func exportGrid(g *grid.Grid, name, jpgPrefix, tiffPrefix string, diverging bool, logWriter io.Writer) error {
	if jpgPrefix=="" && tiffPrefix=="" { return nil }

	stats:=g.Stats()
	min, max:=stats.Min, stats.Max
	if !(max>min) { min, max=min-0.5, min+0.5 } // flat or all-NaN map
	limit:=math.Max(math.Abs(min), math.Abs(max))
	if limit==0 { limit=1 }

	img:=fits.NewImageFromGrid(g)
	if jpgPrefix!="" {
		fileName:=jpgPrefix+"_"+name+".jpg"
		fmt.Fprintf(logWriter, "Writing %s preview to %s ...\n", name, fileName)
		var err error
		if diverging {
			err=img.WriteDivergingJPGToFile(fileName, limit, jpgQuality)
		} else {
			err=img.WriteMonoJPGToFile(fileName, min, max, 1.0, jpgQuality)
		}
		if err!=nil { return err }
	}
	if tiffPrefix!="" {
		fileName:=tiffPrefix+"_"+name+".tiff"
		fmt.Fprintf(logWriter, "Writing %s rendering to %s ...\n", name, fileName)
		if err:=img.WriteMonoTIFF16ToFile(fileName, min, max, 1.0); err!=nil { return err }
	}
	return nil
}
