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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/debug"
	"strings"
	"time"
	sl "github.com/mlnoga/specklight/internal"
	"github.com/mlnoga/specklight/internal/fits"
	"github.com/mlnoga/specklight/internal/match"
	"github.com/mlnoga/specklight/internal/phantom"
	"github.com/mlnoga/specklight/internal/phase"
	"github.com/mlnoga/specklight/internal/rest"
	"github.com/pbnjay/memory"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out  = flag.String("out", "out", "save output files starting with `prefix`")
var jpg  = flag.String("jpg", "%auto", "export 8bit JPEG previews of output maps with given `prefix`. `%auto` uses -out, blank disables")
var tiff = flag.String("tiff", "", "export 16bit TIFF renderings of output maps with given `prefix`, blank disables")
var log  = flag.String("log", "%auto", "save log output to `file`. `%auto` derives the name from -out, blank disables")

var ref  = flag.String("ref", "", "load the reference stack from files matching `patterns`, comma separated")

var window    = flag.Int("window", 2, "analysis window radius in pixels")
var shift     = flag.Int("shift", 4, "displacement search radius in pixels")
var step      = flag.Int("step", 1, "output grid stride in input pixels")
var darkfield = flag.Bool("darkfield", false, "solve for dark-field scattering alongside transmission")
var subpix    = flag.Int("subpix", 1, "half-width of the sub-pixel refinement box")

var threads  = flag.Int("threads", 0, "number of parallel workers, 0=all processors")
var memLimit = flag.Int("memory", int((totalMiBs*7)/10), "total MiB of memory to assume, default=0.7x physical memory")

var size      = flag.Int("size", 256, "phantom exposure width and height in pixels")
var exposures = flag.Int("exposures", 4, "number of phantom exposure pairs")
var grain     = flag.Float64("grain", 1.5, "phantom speckle grain sigma in pixels")
var radius    = flag.Float64("radius", 64, "phantom sphere radius in pixels")
var bend      = flag.Float64("bend", 1.5, "phantom refraction shift scale in pixels")
var absorb    = flag.Float64("absorb", 0.01, "phantom absorption per unit thickness")
var scatter   = flag.Float64("scatter", 0.2, "phantom visibility loss per unit thickness")
var noise     = flag.Float64("noise", 0.01, "phantom additive gaussian noise sigma")
var seed      = flag.Int("seed", 0, "phantom random seed, 0 draws one at random")

var port   = flag.Int("port", 8080, "port to serve the HTTP API on")
var chroot = flag.String("chroot", "", "change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "switch to user `id` before serving, -1=no change")

func main() {
	logWriter:=os.Stdout
	debug.SetGCPercent(10)
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(logWriter, `Specklight Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (match|phantom|integrate|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  match     Match sample exposures given as arguments against the -ref reference stack,
            and write transmission, refraction, dark-field and residual maps
  phantom   Generate a synthetic speckle dataset with known ground truth
  integrate Integrate a dx and a dy refraction map, given as arguments, into a phase map
  serve     Serve the matching API over HTTP
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" {
			*log=*out+".log"
		} else {
			*log=""
		}
	}
	if *log!="" {
		err:=sl.LogAlsoToFile(*log)
		if err!=nil { sl.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}

	// Also auto-select JPEG output prefix
	if *jpg=="%auto" {
		*jpg=*out
	}

	// Enable CPU profiling if flagged
    if *cpuprofile != "" {
        f, err := os.Create(*cpuprofile)
        if err != nil {
            sl.LogFatal("Could not create CPU profile: ", err)
        }
        defer f.Close()
        if err := pprof.StartCPUProfile(f); err != nil {
            sl.LogFatal("Could not start CPU profile: ", err)
        }
        defer pprof.StopCPUProfile()
    }

    args:=flag.Args()
    if len(args)<1 {
    	flag.Usage()
    	return
    }

	// run actions
	var err error
    switch args[0] {
    case "serve":
    	rest.MakeSandbox(*chroot, *setuid)
    	rest.Serve(*port)

    case "match":
    	err=cmdMatch(args[1:], logWriter)

    case "phantom":
    	err=cmdPhantom(logWriter)

    case "integrate":
    	err=cmdIntegrate(args[1:], logWriter)

    case "legal":
    	cmdLegal()

    case "version":
    	fmt.Fprintf(logWriter, "Version %s\n", version)

    case "help", "?":
    	flag.Usage()

    default:
    	fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
    	flag.Usage()
    	return
    }

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
    if *memprofile != "" {
        f, err := os.Create(*memprofile)
        if err != nil {
            sl.LogFatal("Could not create memory profile: ", err)
        }
        defer f.Close()
        runtime.GC() // get up-to-date statistics
        if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
            sl.LogFatal("Could not write allocation profile: ", err)
        }
    }

    if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
    sl.LogSync()
}

// Perform speckle matching command
func cmdMatch(args []string, logWriter io.Writer) error {
	if len(args)<1 { return errors.New("match: no sample file patterns given") }
	if *ref==""    { return errors.New("match: no reference files given, use -ref") }

	fmt.Fprintf(logWriter, "Loading sample stack:\n")
	samples, err:=fits.ReadStack(args, logWriter)
	if err!=nil { return err }

	fmt.Fprintf(logWriter, "Loading reference stack:\n")
	refs, err:=fits.ReadStack(strings.Split(*ref, ","), logWriter)
	if err!=nil { return err }

	cfg:=match.Config{
		WindowRadius: *window,
		MaxShift    : *shift,
		Step        : *step,
		DarkField   : *darkfield,
		SubPixWidth : *subpix,
		Verbose     : true,
	}
	mc:=match.NewContext(logWriter, *memLimit, *threads)
	res, err:=match.Match(context.Background(), samples, refs, cfg, mc)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%d singular cells, %d sub-pixel fallbacks\n", res.Singular, res.Fallbacks)

	return sl.SaveMaps(res, *out, *jpg, *tiff, logWriter)
}

// Perform phantom generation command
func cmdPhantom(logWriter io.Writer) error {
	opts:=phantom.Options{
		Width    : *size,
		Height   : *size,
		Exposures: *exposures,
		Grain    : *grain,
		Radius   : *radius,
		Bend     : *bend,
		Absorb   : *absorb,
		Scatter  : *scatter,
		Noise    : *noise,
		Seed     : uint32(*seed),
	}
	ds, err:=phantom.New(opts)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Generated %d exposure pair(s) of %dx%d pixels with seed %d\n",
		len(ds.Sample), *size, *size, ds.Seed)

	return sl.SavePhantom(ds, *out, logWriter)
}

// Perform phase integration command
func cmdIntegrate(args []string, logWriter io.Writer) error {
	if len(args)!=2 { return errors.New("integrate: need exactly a dx map file and a dy map file") }

	dxImg, err:=fits.NewImageFromFile(args[0], logWriter)
	if err!=nil { return err }
	dyImg, err:=fits.NewImageFromFile(args[1], logWriter)
	if err!=nil { return err }

	fmt.Fprintf(logWriter, "Integrating %dx%d refraction shift maps\n", dxImg.Grid.Width, dxImg.Grid.Height)
	phi, err:=phase.Integrate(dxImg.Grid, dyImg.Grid)
	if err!=nil { return err }

	return sl.SavePhase(phi, *out, *jpg, *tiff, logWriter)
}

// Show licensing information
func cmdLegal() {
	sl.LogPrint(`Specklight is Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.
The binary version of this program uses several open source libraries and components, which come with their own licensing terms. See below for a list of attributions.

ATTRIBUTIONS

A1. https://github.com/gonum/gonum is Copyright (c) 2013 The Gonum Authors. All rights reserved.

Redistribution and use in source and binary forms, with or without modification, are permitted provided that the following conditions are met:

* Redistributions of source code must retain the above copyright notice, this list of conditions and the following disclaimer.

* Redistributions in binary form must reproduce the above copyright notice, this list of conditions and the following disclaimer in the documentation and/or other materials provided with the distribution.

* Neither the name of the copyright holder nor the names of its contributors may be used to endorse or promote products derived from this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.


A2. https://github.com/pbnjay/memory is Copyright (c) 2017, Jeremy Jay. All rights reserved.

Redistribution and use in source and binary forms, with or without modification, are permitted provided that the following conditions are met:

* Redistributions of source code must retain the above copyright notice, this list of conditions and the following disclaimer.

* Redistributions in binary form must reproduce the above copyright notice, this list of conditions and the following disclaimer in the documentation and/or other materials provided with the distribution.

* Neither the name of the copyright holder nor the names of its contributors may be used to endorse or promote products derived from this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.


A3. https://github.com/valyala/fastrand is Copyright (c) 2017 Aliaksandr Valialkin

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated documentation files (the "Software"), to deal in the Software without restriction, including without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.


A4. https://github.com/lucasb-eyer/go-colorful is Copyright (c) 2013 Lucas Beyer

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated documentation files (the "Software"), to deal in the Software without restriction, including without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.


A5. https://github.com/gin-gonic/gin is Copyright (c) 2014 Manuel Martinez-Almeida

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated documentation files (the "Software"), to deal in the Software without restriction, including without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.


A6. https://golang.org/x/image is Copyright (c) 2009 The Go Authors. All rights reserved.

Redistribution and use in source and binary forms, with or without modification, are permitted provided that the following conditions are met:

* Redistributions of source code must retain the above copyright notice, this list of conditions and the following disclaimer.

* Redistributions in binary form must reproduce the above copyright notice, this list of conditions and the following disclaimer in the documentation and/or other materials provided with the distribution.

* Neither the name of Google Inc. nor the names of its contributors may be used to endorse or promote products derived from this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
`)
}
