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
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Diverging palette endpoints after Moreland, for rendering signed maps
// like refraction angles. Midpoint is a neutral gray.
var (
	divergingLow =colorful.Color{R: 0.230, G: 0.299, B: 0.754}
	divergingMid =colorful.Color{R: 0.865, G: 0.865, B: 0.865}
	divergingHigh=colorful.Color{R: 0.706, G: 0.016, B: 0.150}
)

// Writes the grid to a grayscale 8-bit JPEG file, using the given min,
// max, gamma and quality.
func (img *Image) WriteMonoJPGToFile(fileName string, min, max, gamma float64, quality int) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()
	return img.WriteMonoJPG(writer, min, max, gamma, quality)
}

// Writes the grid to a grayscale 8-bit JPEG, using the given min, max,
// gamma and quality. NaN cells are replaced with zeros, else JPEG output breaks.
func (img *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float64, quality int) error {
	width, height:=img.Grid.Width, img.Grid.Height
	out:=image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
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
			out.SetGray(x, y, color.Gray{uint8(gray*255)})
		}
	}
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: quality})
}

// Writes the grid to a false-color 8-bit JPEG file using a blue-gray-red
// diverging palette centered on zero.
func (img *Image) WriteDivergingJPGToFile(fileName string, limit float64, quality int) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()
	return img.WriteDivergingJPG(writer, limit, quality)
}

// Writes the grid to a false-color 8-bit JPEG using a blue-gray-red diverging
// palette centered on zero. Values at or below -limit map to full blue, values
// at or above +limit to full red. NaN cells are rendered black.
func (img *Image) WriteDivergingJPG(writer io.Writer, limit float64, quality int) error {
	width, height:=img.Grid.Width, img.Grid.Height
	out:=image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale:=0.5/limit
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			value:=img.Grid.Data[yoffset+x]
			if math.IsNaN(value) {
				out.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
				continue
			}
			t:=value*scale+0.5
			if t<0 { t=0 }
			if t>1 { t=1 }
			var c colorful.Color
			if t<0.5 {
				c=divergingLow.BlendLab(divergingMid, t*2)
			} else {
				c=divergingMid.BlendLab(divergingHigh, (t-0.5)*2)
			}
			r, g, b:=c.Clamped().RGB255()
			out.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: quality})
}
