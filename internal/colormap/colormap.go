// Package colormap turns 8-bit depth images into false-color RGBA images.
package colormap

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Func maps a single-channel image to a color image of the same bounds.
type Func func(src *image.Gray) *image.RGBA

type stop struct {
	pos float64
	c   colorful.Color
}

// The usual jet ramp: dark blue, blue, cyan, yellow, red, dark red.
var jetStops = []stop{
	{0, colorful.Color{R: 0, G: 0, B: 0.5}},
	{0.125, colorful.Color{R: 0, G: 0, B: 1}},
	{0.375, colorful.Color{R: 0, G: 1, B: 1}},
	{0.625, colorful.Color{R: 1, G: 1, B: 0}},
	{0.875, colorful.Color{R: 1, G: 0, B: 0}},
	{1, colorful.Color{R: 0.5, G: 0, B: 0}},
}

var jetTable = buildTable(jetStops)

func buildTable(stops []stop) [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		t := float64(i) / 255
		j := 1
		for j < len(stops)-1 && stops[j].pos < t {
			j++
		}
		a, b := stops[j-1], stops[j]
		f := (t - a.pos) / (b.pos - a.pos)
		r, g, bl := a.c.BlendRgb(b.c, f).Clamped().RGB255()
		lut[i] = color.RGBA{R: r, G: g, B: bl, A: 0xff}
	}
	return lut
}

// Jet applies the jet color map: 0 is dark blue, 255 dark red.
func Jet(src *image.Gray) *image.RGBA { return apply(src, &jetTable) }

// JetColor returns the jet color for one value.
func JetColor(v uint8) color.RGBA { return jetTable[v] }

// Gray replicates luminance into RGB.
func Gray(src *image.Gray) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		srow := src.Pix[(y-b.Min.Y)*src.Stride:]
		drow := dst.Pix[(y-b.Min.Y)*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			v := srow[x]
			drow[4*x], drow[4*x+1], drow[4*x+2], drow[4*x+3] = v, v, v, 0xff
		}
	}
	return dst
}

func apply(src *image.Gray, lut *[256]color.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		srow := src.Pix[(y-b.Min.Y)*src.Stride:]
		drow := dst.Pix[(y-b.Min.Y)*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			c := lut[srow[x]]
			drow[4*x], drow[4*x+1], drow[4*x+2], drow[4*x+3] = c.R, c.G, c.B, c.A
		}
	}
	return dst
}

// ByName resolves a config value; empty means jet.
func ByName(name string) (Func, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "jet":
		return Jet, nil
	case "gray", "grey":
		return Gray, nil
	default:
		return nil, fmt.Errorf("colormap: unknown map %q", name)
	}
}
