package render

import (
	"image/color"

	"gonum.org/v1/plot/palette"
)

// cividisStops samples the cividis colormap at ten evenly spaced points.
var cividisStops = []string{
	"#00224e", "#123570", "#3b496c", "#575d6d", "#707173",
	"#8a8678", "#a59c74", "#c3b369", "#e1cc55", "#fee838",
}

// Overlay and marker colors shared by the interactive and static renderers.
var (
	maskColor    = color.NRGBA{R: 255, A: 89} // red at 35% opacity
	markerFill   = color.White
	markerStroke = color.Black
	ordinalFill  = color.NRGBA{R: 255, G: 159, B: 28, A: 255}
)

const (
	maskColorCSS    = "rgba(255,0,0,0.35)"
	ordinalColorCSS = "#ff9f1c"
)

// cividis is a palette.Palette interpolating cividisStops into n colors.
type cividis struct {
	n int
}

// Cividis returns a cividis palette with n colors. n below 2 is raised to 2.
func Cividis(n int) palette.Palette {
	return cividis{n: max(n, 2)}
}

func (p cividis) Colors() []color.Color {
	stops := make([]color.NRGBA, len(cividisStops))
	for i, s := range cividisStops {
		stops[i] = parseHex(s)
	}

	out := make([]color.Color, p.n)
	for i := range out {
		f := float64(i) / float64(p.n-1) * float64(len(stops)-1)
		k := min(int(f), len(stops)-2)
		out[i] = lerp(stops[k], stops[k+1], f-float64(k))
	}
	return out
}

// maskPalette is the single overlay red.
type maskPalette struct{}

func (maskPalette) Colors() []color.Color {
	return []color.Color{maskColor}
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

func parseHex(s string) color.NRGBA {
	var c color.NRGBA
	c.A = 255
	hex := func(b byte) uint8 {
		switch {
		case b >= '0' && b <= '9':
			return b - '0'
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10
		}
		return 0
	}
	if len(s) == 7 && s[0] == '#' {
		c.R = hex(s[1])<<4 | hex(s[2])
		c.G = hex(s[3])<<4 | hex(s[4])
		c.B = hex(s[5])<<4 | hex(s[6])
	}
	return c
}
