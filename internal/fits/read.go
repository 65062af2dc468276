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
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/specklight/internal/grid"
)

var reParser *regexp.Regexp = compileRE() // regexp parser for FITS header lines

// Reads the image with the given file name. Decompresses gzip for .gz and
// .gzip suffixes, and decodes TIFF for .tif and .tiff suffixes.
func NewImageFromFile(fileName string, logWriter io.Writer) (*Image, error) {
	i:=NewImage()
	if err:=i.ReadFile(fileName, logWriter); err!=nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return i, nil
}

// Expands the given glob patterns and loads every matching file as a grid,
// in lexical order per pattern. Patterns without wildcards name files directly.
func ReadStack(patterns []string, logWriter io.Writer) ([]*grid.Grid, error) {
	var grids []*grid.Grid
	for _,pat:=range patterns {
		matches, err:=filepath.Glob(pat)
		if err!=nil {
			return nil, fmt.Errorf("fits: invalid pattern %s: %w", pat, err)
		}
		if len(matches)==0 { matches=[]string{pat} }
		for _,m:=range matches {
			img, err:=NewImageFromFile(m, logWriter)
			if err!=nil { return nil, err }
			fmt.Fprintf(logWriter, "Loaded %dx%d pixels from %s\n", img.Grid.Width, img.Grid.Height, m)
			grids=append(grids, img.Grid)
		}
	}
	if len(grids)==0 {
		return nil, errors.New("fits: no input files")
	}
	return grids, nil
}

// Reads FITS or TIFF data from the file with the given name, decompressing
// gzip if a .gz or .gzip suffix is present
func (img *Image) ReadFile(fileName string, logWriter io.Writer) error {
	f, err:=os.Open(fileName)
	if err!=nil { return err }
	defer f.Close()

	var r io.Reader=f
	img.FileName=fileName
	switch lExt:=strings.ToLower(path.Ext(fileName)); lExt {
	case ".tif", ".tiff":
		return img.readTIFF(r)
	case ".gz", ".gzip":
		if r, err=gzip.NewReader(f); err!=nil { return err }
	}
	return img.Read(r, logWriter)
}

// Reads a FITS image from the stream: header cards, mandatory geometry and
// the data payload, folding BZERO and BSCALE into the grid values.
func (img *Image) Read(r io.Reader, logWriter io.Writer) error {
	if err:=img.Header.read(r, logWriter); err!=nil { return err }

	if !img.Header.Bools["SIMPLE"] {
		return errors.New("not a valid FITS file; SIMPLE=T missing in header")
	}
	delete(img.Header.Bools, "SIMPLE")

	bitpix, ok:=img.Header.popInt("BITPIX")
	if !ok { return errors.New("FITS header lacks BITPIX") }
	img.Bitpix=bitpix

	naxis, ok:=img.Header.popInt("NAXIS")
	if !ok { return errors.New("FITS header lacks NAXIS") }
	if naxis<2 { return fmt.Errorf("%d-dimensional FITS data not supported", naxis) }
	width, ok:=img.Header.popInt("NAXIS1")
	if !ok { return errors.New("FITS header lacks NAXIS1") }
	height, ok:=img.Header.popInt("NAXIS2")
	if !ok { return errors.New("FITS header lacks NAXIS2") }
	if width<1 || height<1 { return fmt.Errorf("invalid FITS geometry %dx%d", width, height) }
	for i:=3; i<=naxis; i++ {
		n, ok:=img.Header.popInt("NAXIS"+strconv.Itoa(i))
		if !ok { return fmt.Errorf("FITS header lacks NAXIS%d", i) }
		if n!=1 { return fmt.Errorf("%d-dimensional FITS data not supported", naxis) }
	}

	img.Bzero=img.Header.popFloat("BZERO", 0)
	img.Bscale=img.Header.popFloat("BSCALE", 1)

	img.Grid=grid.New(width, height)
	return img.readData(r, logWriter)
}

// Reads the data payload in the type given by BITPIX into the grid
func (img *Image) readData(r io.Reader, logWriter io.Writer) error {
	switch img.Bitpix {
	case 8:
		return img.decode(r, 1, func(b []byte) float64 { return float64(b[0]) })
	case 16:
		return img.decode(r, 2, func(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) })
	case 32:
		return img.decode(r, 4, func(b []byte) float64 { return float64(int32(binary.BigEndian.Uint32(b))) })
	case 64:
		fmt.Fprintf(logWriter, "Warning: possible loss of precision converting int64 to float64 values\n")
		return img.decode(r, 8, func(b []byte) float64 { return float64(int64(binary.BigEndian.Uint64(b))) })
	case -32:
		return img.decode(r, 4, func(b []byte) float64 { return float64(math.Float32frombits(binary.BigEndian.Uint32(b))) })
	case -64:
		return img.decode(r, 8, func(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) })
	default:
		return fmt.Errorf("unknown BITPIX value %d", img.Bitpix)
	}
}

const bufLen int = 16*1024 // input buffer length, a multiple of every value size

// Batched decode of the data payload, converting each value from network
// byte order and applying BZERO and BSCALE
func (img *Image) decode(r io.Reader, bytesPerValue int, conv func([]byte) float64) error {
	data:=img.Grid.Data
	buf:=make([]byte, bufLen)
	for index:=0; index<len(data); {
		bytesToRead:=(len(data)-index)*bytesPerValue
		if bytesToRead>bufLen { bytesToRead=bufLen }
		if _, err:=io.ReadFull(r, buf[:bytesToRead]); err!=nil { return err }
		for i:=0; i<bytesToRead; i+=bytesPerValue {
			data[index]=conv(buf[i:i+bytesPerValue])*img.Bscale+img.Bzero
			index++
		}
	}
	img.Bzero, img.Bscale=0, 1 // data values incorporate these now
	return nil
}

func (h *Header) read(r io.Reader, logWriter io.Writer) error {
	buf:=make([]byte, fitsBlockSize)
	for !h.End {
		if _, err:=io.ReadFull(r, buf); err!=nil { return err }

		// parse all lines in this header unit
		for lineNo:=0; lineNo<fitsBlockSize/headerLineSize && !h.End; lineNo++ {
			line:=buf[lineNo*headerLineSize : (lineNo+1)*headerLineSize]
			subValues:=reParser.FindSubmatch(line)
			if subValues==nil {
				fmt.Fprintf(logWriter, "Warning: cannot parse FITS header line '%s', ignoring\n", string(line))
				continue
			}
			h.readLine(reParser.SubexpNames(), subValues)
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte) {
	key:=""
	// index 0 is the whole line
	for i:=1; i<len(subNames); i++ {
		if subValues[i]==nil || len(subNames[i])!=1 { continue }
		switch subNames[i][0] {
		case 'E': // end line
			h.End=true
		case 'H': // history line
			h.History=append(h.History, strings.TrimRight(string(subValues[i]), " "))
		case 'C': // comment line
			h.Comments=append(h.Comments, strings.TrimRight(string(subValues[i]), " "))
		case 'k': // key
			key=string(subValues[i])
		case 'b': // boolean
			if len(subValues[i])>0 {
				v:=subValues[i][0]
				h.Bools[key]=v=='t' || v=='T'
			}
		case 'i': // int
			if val, err:=strconv.Atoi(string(subValues[i])); err==nil {
				h.Ints[key]=val
			}
		case 'f': // float
			if val, err:=strconv.ParseFloat(string(subValues[i]), 64); err==nil {
				h.Floats[key]=val
			}
		case 's': // string
			h.Strings[key]=strings.TrimRight(string(subValues[i]), " ")
		case 'd': // date
			h.Dates[key]=string(subValues[i])
		case 'c': // value comment, ignored
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white   :="\\s+"
	whiteOpt:="\\s*"

	histLine:="HISTORY"+white+"(?P<H>.*)"
	commLine:="COMMENT"+white+"(?P<C>.*)"
	endLine :="(?P<E>END)"+whiteOpt

	key   :="(?P<k>[A-Z0-9_-]+)"
	boo   :="(?P<b>[TF])"
	inte  :="(?P<i>[+-]?[0-9]+)"
	floa  :="(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri  :="'(?P<s>[^']*)'"
	date  :="(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val   :="(?:"+boo+"|"+inte+"|"+floa+"|"+stri+"|"+date+")"
	commOpt:="(?:/(?P<c>.*))?"
	keyLine:=key+whiteOpt+"="+whiteOpt+val+whiteOpt+commOpt

	return regexp.MustCompile("^(?:"+white+"|"+histLine+"|"+commLine+"|"+keyLine+"|"+endLine+")$")
}
