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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// Writes the image to the file with the given name as 32-bit floating
// point FITS
func (img *Image) WriteFile(fileName string) error {
	f, err:=os.Create(fileName)
	if err!=nil { return err }
	defer f.Close()

	w:=bufio.NewWriter(f)
	defer w.Flush()
	return img.Write(w)
}

// Writes the image to the stream as 32-bit floating point FITS: geometry
// cards, the metadata cards from the header maps in sorted order, history
// lines, and the big-endian data payload. NaN cells are written verbatim,
// the IEEE format represents them.
func (img *Image) Write(w io.Writer) error {
	if img.Grid==nil { return errors.New("fits: no data to write") }

	cw:=&cardWriter{w: w}
	cw.writeBool("SIMPLE", true, "file conforms to FITS standard")
	cw.writeInt("BITPIX", -32, "array data type: IEEE float32")
	cw.writeInt("NAXIS", 2, "number of array dimensions")
	cw.writeInt("NAXIS1", img.Grid.Width, "array width")
	cw.writeInt("NAXIS2", img.Grid.Height, "array height")
	// metadata cards in sorted order, so output is reproducible
	keys:=make([]string, 0, len(img.Header.Ints))
	for k:=range img.Header.Ints { keys=append(keys, k) }
	sort.Strings(keys)
	for _,k:=range keys { cw.writeInt(k, img.Header.Ints[k], "") }

	keys=keys[:0]
	for k:=range img.Header.Floats { keys=append(keys, k) }
	sort.Strings(keys)
	for _,k:=range keys { cw.writeFloat(k, img.Header.Floats[k], "") }

	keys=keys[:0]
	for k:=range img.Header.Strings { keys=append(keys, k) }
	sort.Strings(keys)
	for _,k:=range keys { cw.writeString(k, img.Header.Strings[k], "") }
	for _,s:=range img.Header.History {
		cw.write(fmt.Sprintf("HISTORY %s", s))
	}
	cw.write("END")
	cw.pad()
	if cw.err!=nil { return cw.err }

	return writeFloat32Payload(w, img.Grid.Data)
}

// Accumulates 80-character header cards and pads them to full blocks
type cardWriter struct {
	w     io.Writer
	cards int
	err   error
}

func (cw *cardWriter) write(card string) {
	if cw.err!=nil { return }
	if len(card)>headerLineSize { card=card[:headerLineSize] }
	buf:=make([]byte, headerLineSize)
	copy(buf, card)
	for i:=len(card); i<headerLineSize; i++ { buf[i]=' ' }
	_, cw.err=cw.w.Write(buf)
	cw.cards++
}

func (cw *cardWriter) writeBool(key string, v bool, comment string) {
	s:="F"
	if v { s="T" }
	cw.write(fmt.Sprintf("%-8s= %20s / %-47s", key, s, comment))
}

func (cw *cardWriter) writeInt(key string, v int, comment string) {
	if comment=="" {
		cw.write(fmt.Sprintf("%-8s= %20d", key, v))
	} else {
		cw.write(fmt.Sprintf("%-8s= %20d / %-47s", key, v, comment))
	}
}

func (cw *cardWriter) writeFloat(key string, v float64, comment string) {
	if comment=="" {
		cw.write(fmt.Sprintf("%-8s= %20.8E", key, v))
	} else {
		cw.write(fmt.Sprintf("%-8s= %20.8E / %-47s", key, v, comment))
	}
}

func (cw *cardWriter) writeString(key, v, comment string) {
	if comment=="" {
		cw.write(fmt.Sprintf("%-8s= '%s'", key, v))
	} else {
		cw.write(fmt.Sprintf("%-8s= %-20s / %-47s", key, "'"+v+"'", comment))
	}
}

// Fills the current header block with blank cards
func (cw *cardWriter) pad() {
	for cw.cards%(fitsBlockSize/headerLineSize)!=0 {
		cw.write("")
	}
}

// Writes the data values as big-endian IEEE float32, zero-padded to a full
// FITS block
func writeFloat32Payload(w io.Writer, data []float64) error {
	buf:=make([]byte, bufLen)
	n:=0
	for _,v:=range data {
		binary.BigEndian.PutUint32(buf[n:n+4], math.Float32bits(float32(v)))
		n+=4
		if n==bufLen {
			if _, err:=w.Write(buf); err!=nil { return err }
			n=0
		}
	}
	if n>0 {
		if _, err:=w.Write(buf[:n]); err!=nil { return err }
	}
	written:=4*len(data)
	if tail:=written%fitsBlockSize; tail!=0 {
		pad:=make([]byte, fitsBlockSize-tail)
		if _, err:=w.Write(pad); err!=nil { return err }
	}
	return nil
}
