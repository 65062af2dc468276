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
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"

	"github.com/mlnoga/specklight/internal/grid"
)

// Writes the grid to a grayscale 16-bit TIFF file, using the given min,
// max and gamma.
func (img *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float64) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()
	return img.WriteMonoTIFF16(writer, min, max, gamma)
}

// Writes the grid to a grayscale 16-bit TIFF, using the given min, max and
// gamma. NaN cells are replaced with zeros, else TIFF output breaks.
func (img *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float64) error {
	width, height:=img.Grid.Width, img.Grid.Height
	out:=image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale:=1/(max-min)
	gammaInv:=1.0/gamma
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			gray:=img.Grid.Data[yoffset+x]
			gray=(gray-min)*scale
			if math.IsNaN(gray) || gray<0 { gray=0 }
			if gray>1 { gray=1 }
			if gammaInv!=1.0 { gray=math.Pow(gray, gammaInv) }
			out.SetGray16(x, y, color.Gray16{uint16(gray*65535)})
		}
	}
	return tiff.Encode(writer, out, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Decodes a TIFF stream into the grid as normalized luminance in [0,1]
func (img *Image) readTIFF(r io.Reader) error {
	decoded, err:=tiff.Decode(r)
	if err!=nil { return err }

	bounds:=decoded.Bounds()
	width, height:=bounds.Dx(), bounds.Dy()
	img.Bitpix=-32
	img.Grid=grid.New(width, height)
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			r, g, b, _:=decoded.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			img.Grid.Data[yoffset+x]=float64(r+g+b)/(3*65535)
		}
	}
	return nil
}
