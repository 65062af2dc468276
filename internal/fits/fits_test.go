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


package fits

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/specklight/internal/grid"
)

func TestWriteReadRoundTrip(t *testing.T) {
	g:=grid.New(5, 4)
	for i:=range g.Data { g.Data[i]=float64(i)*0.25-1.5 }
	g.Data[7]=math.NaN()

	img:=NewImageFromGrid(g)
	img.Header.Ints["STEP"]=4
	img.Header.Ints["OFFSETX"]=8
	img.Header.Floats["SHIFTTOL"]=1.5
	img.Header.Strings["MAPTYPE"]="dx"
	img.Header.History=append(img.Header.History, "matched 2 exposures")

	buf:=bytes.Buffer{}
	if err:=img.Write(&buf); err!=nil { t.Fatalf("write: %s", err) }
	if buf.Len()%fitsBlockSize!=0 {
		t.Errorf("output size %d not a multiple of %d", buf.Len(), fitsBlockSize)
	}

	re:=NewImage()
	if err:=re.Read(&buf, io.Discard); err!=nil { t.Fatalf("read: %s", err) }
	if re.Grid.Width!=5 || re.Grid.Height!=4 {
		t.Fatalf("got geometry %dx%d, expected 5x4", re.Grid.Width, re.Grid.Height)
	}
	for i,v:=range re.Grid.Data {
		want:=float64(float32(float64(i)*0.25-1.5))
		if i==7 {
			if !math.IsNaN(v) { t.Errorf("value %d: got %g, expected NaN", i, v) }
			continue
		}
		if v!=want { t.Errorf("value %d: got %g, expected %g", i, v, want) }
	}
	if v:=re.Header.Ints["STEP"]; v!=4 { t.Errorf("STEP: got %d, expected 4", v) }
	if v:=re.Header.Ints["OFFSETX"]; v!=8 { t.Errorf("OFFSETX: got %d, expected 8", v) }
	if v:=re.Header.Floats["SHIFTTOL"]; v!=1.5 { t.Errorf("SHIFTTOL: got %g, expected 1.5", v) }
	if v:=re.Header.Strings["MAPTYPE"]; v!="dx" { t.Errorf("MAPTYPE: got %q, expected dx", v) }
	if len(re.Header.History)!=1 || re.Header.History[0]!="matched 2 exposures" {
		t.Errorf("history: got %v", re.Header.History)
	}
}

func TestReadParsesHeaderCards(t *testing.T) {
	lines:=[]string{
		"SIMPLE  =                    T / conforms to FITS standard",
		"BITPIX  =                  -32",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    2",
		"EXPTIME =                 1.25",
		"DATE-OBS= 2025-08-25T10:30:00",
		"OBJECT  = 'diffuser scan'",
		"COMMENT windowed speckle data",
		"HISTORY captured on beamline",
		"this line is not a valid card",
		"END",
	}
	block:=make([]byte, fitsBlockSize)
	for i:=range block { block[i]=' ' }
	for i,l:=range lines { copy(block[i*headerLineSize:], l) }

	payload:=make([]byte, fitsBlockSize)
	for i,v:=range []float32{1, 2, 3, 4} {
		binary.BigEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	log:=bytes.Buffer{}
	img:=NewImage()
	if err:=img.Read(bytes.NewReader(append(block, payload...)), &log); err!=nil {
		t.Fatalf("read: %s", err)
	}
	if img.Grid.Width!=2 || img.Grid.Height!=2 {
		t.Fatalf("got geometry %dx%d, expected 2x2", img.Grid.Width, img.Grid.Height)
	}
	for i,want:=range []float64{1, 2, 3, 4} {
		if img.Grid.Data[i]!=want { t.Errorf("value %d: got %g, expected %g", i, img.Grid.Data[i], want) }
	}
	if v:=img.Header.Floats["EXPTIME"]; v!=1.25 { t.Errorf("EXPTIME: got %g, expected 1.25", v) }
	if v:=img.Header.Dates["DATE-OBS"]; v!="2025-08-25T10:30:00" { t.Errorf("DATE-OBS: got %q", v) }
	if v:=img.Header.Strings["OBJECT"]; v!="diffuser scan" { t.Errorf("OBJECT: got %q", v) }
	if len(img.Header.Comments)!=1 || img.Header.Comments[0]!="windowed speckle data" {
		t.Errorf("comments: got %v", img.Header.Comments)
	}
	if len(img.Header.History)!=1 || img.Header.History[0]!="captured on beamline" {
		t.Errorf("history: got %v", img.Header.History)
	}
	if !strings.Contains(log.String(), "cannot parse") {
		t.Errorf("expected a warning for the malformed line, log was %q", log.String())
	}
}

func TestReadRejectsNonFITS(t *testing.T) {
	lines:=[]string{
		"BITPIX  =                  -32",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    2",
		"END",
	}
	block:=make([]byte, fitsBlockSize)
	for i:=range block { block[i]=' ' }
	for i,l:=range lines { copy(block[i*headerLineSize:], l) }

	img:=NewImage()
	if err:=img.Read(bytes.NewReader(block), io.Discard); err==nil {
		t.Errorf("expected error for header without SIMPLE=T")
	}
}

func TestReadGzipFile(t *testing.T) {
	g:=grid.New(3, 3)
	for i:=range g.Data { g.Data[i]=float64(i) }
	buf:=bytes.Buffer{}
	if err:=NewImageFromGrid(g).Write(&buf); err!=nil { t.Fatalf("write: %s", err) }

	fileName:=filepath.Join(t.TempDir(), "maps.fits.gz")
	f, err:=os.Create(fileName)
	if err!=nil { t.Fatalf("create: %s", err) }
	zw:=gzip.NewWriter(f)
	if _, err:=zw.Write(buf.Bytes()); err!=nil { t.Fatalf("compress: %s", err) }
	if err:=zw.Close(); err!=nil { t.Fatalf("close gzip: %s", err) }
	if err:=f.Close(); err!=nil { t.Fatalf("close file: %s", err) }

	re, err:=NewImageFromFile(fileName, io.Discard)
	if err!=nil { t.Fatalf("read: %s", err) }
	if re.Grid.Width!=3 || re.Grid.Height!=3 {
		t.Fatalf("got geometry %dx%d, expected 3x3", re.Grid.Width, re.Grid.Height)
	}
	for i,v:=range re.Grid.Data {
		if v!=float64(i) { t.Errorf("value %d: got %g, expected %d", i, v, i) }
	}
}

func TestTIFFRoundTrip(t *testing.T) {
	g:=grid.New(6, 5)
	for i:=range g.Data { g.Data[i]=float64(i)/float64(len(g.Data)-1) }

	buf:=bytes.Buffer{}
	if err:=NewImageFromGrid(g).WriteMonoTIFF16(&buf, 0, 1, 1); err!=nil {
		t.Fatalf("write: %s", err)
	}
	re:=NewImage()
	if err:=re.readTIFF(&buf); err!=nil { t.Fatalf("read: %s", err) }
	if re.Grid.Width!=6 || re.Grid.Height!=5 {
		t.Fatalf("got geometry %dx%d, expected 6x5", re.Grid.Width, re.Grid.Height)
	}
	for i,v:=range re.Grid.Data {
		if diff:=math.Abs(v-g.Data[i]); diff>2.0/65535 {
			t.Errorf("value %d: got %g, expected %g", i, v, g.Data[i])
		}
	}
}

func TestReadStack(t *testing.T) {
	dir:=t.TempDir()
	for i,name:=range []string{"samp1.fits", "samp2.fits"} {
		g:=grid.New(4, 4)
		g.Fill(float64(i+1))
		if err:=NewImageFromGrid(g).WriteFile(filepath.Join(dir, name)); err!=nil {
			t.Fatalf("write %s: %s", name, err)
		}
	}

	grids, err:=ReadStack([]string{filepath.Join(dir, "samp*.fits")}, io.Discard)
	if err!=nil { t.Fatalf("read stack: %s", err) }
	if len(grids)!=2 { t.Fatalf("got %d grids, expected 2", len(grids)) }
	if grids[0].Data[0]!=1 || grids[1].Data[0]!=2 {
		t.Errorf("stack loaded out of order: %g, %g", grids[0].Data[0], grids[1].Data[0])
	}

	if _, err:=ReadStack(nil, io.Discard); err==nil {
		t.Errorf("expected error for empty pattern list")
	}
	if _, err:=ReadStack([]string{filepath.Join(dir, "missing.fits")}, io.Discard); err==nil {
		t.Errorf("expected error for missing file")
	}
}
