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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"github.com/gin-gonic/gin"

	sl "github.com/mlnoga/specklight/internal"
	"github.com/mlnoga/specklight/internal/fits"
	"github.com/mlnoga/specklight/internal/match"
	"github.com/mlnoga/specklight/internal/phantom"
	"github.com/mlnoga/specklight/internal/phase"
	"github.com/mlnoga/specklight/web"
)


func Serve(port int) {
	r := NewRouter()
	r.Run(fmt.Sprintf(":%d", port))
}

// Builds the API router. Input and output file paths in request bodies
// are resolved on the server.
func NewRouter() *gin.Engine {
	r := gin.Default()
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",      getPing)
			v1.POST("/match",     postMatch)
			v1.POST("/phantom",   postPhantom)
			v1.POST("/integrate", postIntegrate)
		}
	}
	return r
}

func getIndex(c *gin.Context) {
	c.Data(200, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postMatchArgs struct {
	Sample    []string      `json:"sample"`
	Reference []string      `json:"reference"`
	Config    match.Config  `json:"config"`
	Out       string        `json:"out"`
}

func postMatch(c *gin.Context)  {
	logWriter := c.Writer
	var args postMatchArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Out=="" { args.Out="out" }

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	samples, err:=fits.ReadStack(args.Sample, logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error loading sample stack: %s\n", err.Error())
		return
	}
	refs, err:=fits.ReadStack(args.Reference, logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error loading reference stack: %s\n", err.Error())
		return
	}

	mc:=match.NewContext(logWriter, 0, 0)
	res, err:=match.Match(c.Request.Context(), samples, refs, args.Config, mc)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		logWriter.(http.Flusher).Flush()
		return
	}
	fmt.Fprintf(logWriter, "Matched %dx%d cells: %d singular, %d sub-pixel fallbacks\n",
		res.T.Width, res.T.Height, res.Singular, res.Fallbacks)

	if err:=sl.SaveMaps(res, args.Out, "", "", logWriter); err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

type postPhantomArgs struct {
	Options phantom.Options `json:"options"`
	Out     string          `json:"out"`
}

func postPhantom(c *gin.Context) {
	logWriter := c.Writer
	var args postPhantomArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Out=="" { args.Out="phantom" }

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ds, err:=phantom.New(args.Options)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		logWriter.(http.Flusher).Flush()
		return
	}
	fmt.Fprintf(logWriter, "Generated %d exposure pair(s) of %dx%d pixels with seed %d\n",
		len(ds.Sample), args.Options.Width, args.Options.Height, ds.Seed)

	if err:=sl.SavePhantom(ds, args.Out, logWriter); err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

type postIntegrateArgs struct {
	Dx  string `json:"dx"`
	Dy  string `json:"dy"`
	Out string `json:"out"`
}

func postIntegrate(c *gin.Context) {
	logWriter := c.Writer
	var args postIntegrateArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Out=="" { args.Out="out" }

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	dxImg, err:=fits.NewImageFromFile(args.Dx, logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error loading dx map: %s\n", err.Error())
		return
	}
	dyImg, err:=fits.NewImageFromFile(args.Dy, logWriter)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error loading dy map: %s\n", err.Error())
		return
	}

	phi, err:=phase.Integrate(dxImg.Grid, dyImg.Grid)
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		logWriter.(http.Flusher).Flush()
		return
	}

	if err:=sl.SavePhase(phi, args.Out, "", "", logWriter); err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}
