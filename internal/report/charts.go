package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Bar is one labelled value of a chart.
type Bar struct {
	Label string
	Value int
}

// BarChart describes one panel. Horizontal charts put labels on the left,
// which suits long discipline names.
type BarChart struct {
	Title      string
	Bars       []Bar
	Horizontal bool
	Colors     []color.RGBA
	// Empty is shown instead of bars when there is nothing to plot.
	Empty string
}

var (
	colorWhite = color.RGBA{255, 255, 255, 255}
	colorText  = color.RGBA{33, 33, 33, 255}
	colorGrid  = color.RGBA{225, 225, 225, 255}
	colorAxis  = color.RGBA{120, 120, 120, 255}

	// Brand colors of the reports.
	colorPrimary   = mustHex("#004488")
	colorHighlight = mustHex("#ff8c00")
	colorVendors   = mustHex("#2E8B57")
	colorVendorsHi = mustHex("#FFD700")
	colorClosures  = mustHex("#28a745")
)

var face = basicfont.Face7x13

const (
	lineHeight = 13
	padding    = 16
)

func mustHex(s string) color.RGBA {
	c, err := parseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHex(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("report: bad color %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("report: bad color %q: %w", s, err)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}

// palette spreads n shades between two colors.
func palette(n int, from, to color.RGBA) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		f := 0.0
		if n > 1 {
			f = float64(i) / float64(n-1)
		}
		out[i] = color.RGBA{
			R: uint8(float64(from.R) + f*(float64(to.R)-float64(from.R))),
			G: uint8(float64(from.G) + f*(float64(to.G)-float64(from.G))),
			B: uint8(float64(from.B) + f*(float64(to.B)-float64(from.B))),
			A: 255,
		}
	}
	return out
}

// Figure is a canvas with a title and one or more side-by-side panels.
type Figure struct {
	Title  string
	Width  int
	Height int
	Panels []BarChart
	// Weights sets the relative panel widths; nil means equal.
	Weights []int
}

// PNG renders the figure.
func (f Figure) PNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorWhite), image.Point{}, draw.Src)

	top := padding
	if f.Title != "" {
		drawText(img, f.Title, (f.Width-textWidth(f.Title))/2, padding+lineHeight, colorPrimary)
		top += 2 * lineHeight
	}

	weights := f.Weights
	if len(weights) != len(f.Panels) {
		weights = make([]int, len(f.Panels))
		for i := range weights {
			weights[i] = 1
		}
	}
	total := 0
	for _, w := range weights {
		total += w
	}

	x := padding
	avail := f.Width - padding*(len(f.Panels)+1)
	for i, p := range f.Panels {
		w := avail * weights[i] / total
		drawPanel(img, image.Rect(x, top, x+w, f.Height-padding), p)
		x += w + padding
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding chart: %w", err)
	}
	return buf.Bytes(), nil
}

func drawPanel(img *image.RGBA, r image.Rectangle, c BarChart) {
	drawText(img, c.Title, r.Min.X+(r.Dx()-textWidth(c.Title))/2, r.Min.Y+lineHeight, colorText)
	body := image.Rect(r.Min.X, r.Min.Y+2*lineHeight, r.Max.X, r.Max.Y)

	if len(c.Bars) == 0 {
		msg := c.Empty
		if msg == "" {
			msg = "Sem dados para exibir"
		}
		drawText(img, msg, body.Min.X+(body.Dx()-textWidth(msg))/2, body.Min.Y+body.Dy()/2, colorAxis)
		return
	}

	peak := 0
	for _, b := range c.Bars {
		if b.Value > peak {
			peak = b.Value
		}
	}
	if peak == 0 {
		peak = 1
	}

	colors := c.Colors
	if len(colors) == 0 {
		colors = palette(len(c.Bars), colorPrimary, mustHex("#66aadd"))
	}
	pick := func(i int) color.RGBA { return colors[i%len(colors)] }

	if c.Horizontal {
		drawHorizontal(img, body, c.Bars, peak, pick)
	} else {
		drawVertical(img, body, c.Bars, peak, pick)
	}
}

func drawVertical(img *image.RGBA, body image.Rectangle, bars []Bar, peak int, pick func(int) color.RGBA) {
	// Bottom margin holds the labels, top margin the value annotations.
	plot := image.Rect(body.Min.X, body.Min.Y+lineHeight+4, body.Max.X, body.Max.Y-2*lineHeight)
	fillRect(img, image.Rect(plot.Min.X, plot.Max.Y, plot.Max.X, plot.Max.Y+1), colorAxis)
	for q := 1; q <= 4; q++ {
		y := plot.Max.Y - plot.Dy()*q/4
		fillRect(img, image.Rect(plot.Min.X, y, plot.Max.X, y+1), colorGrid)
	}

	slot := plot.Dx() / len(bars)
	barW := slot * 6 / 10
	if barW < 2 {
		barW = 2
	}
	for i, b := range bars {
		x0 := plot.Min.X + i*slot + (slot-barW)/2
		h := plot.Dy() * b.Value / peak
		fillRect(img, image.Rect(x0, plot.Max.Y-h, x0+barW, plot.Max.Y), pick(i))

		val := strconv.Itoa(b.Value)
		drawText(img, val, x0+(barW-textWidth(val))/2, plot.Max.Y-h-4, colorText)

		label := fit(b.Label, slot)
		drawText(img, label, plot.Min.X+i*slot+(slot-textWidth(label))/2, plot.Max.Y+lineHeight+2, colorText)
	}
}

func drawHorizontal(img *image.RGBA, body image.Rectangle, bars []Bar, peak int, pick func(int) color.RGBA) {
	labelW := 0
	for _, b := range bars {
		if w := textWidth(b.Label); w > labelW {
			labelW = w
		}
	}
	if limit := body.Dx() / 3; labelW > limit {
		labelW = limit
	}

	plot := image.Rect(body.Min.X+labelW+8, body.Min.Y, body.Max.X-5*7, body.Max.Y)
	fillRect(img, image.Rect(plot.Min.X, plot.Min.Y, plot.Min.X+1, plot.Max.Y), colorAxis)

	slot := plot.Dy() / len(bars)
	barH := slot * 7 / 10
	if barH < 2 {
		barH = 2
	}
	for i, b := range bars {
		y0 := plot.Min.Y + i*slot + (slot-barH)/2
		w := plot.Dx() * b.Value / peak
		fillRect(img, image.Rect(plot.Min.X, y0, plot.Min.X+w, y0+barH), pick(i))

		mid := y0 + barH/2 + lineHeight/2 - 2
		label := fit(b.Label, labelW)
		drawText(img, label, plot.Min.X-8-textWidth(label), mid, colorText)
		drawText(img, " "+strconv.Itoa(b.Value), plot.Min.X+w, mid, colorText)
	}
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(img *image.RGBA, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// fit shortens s with an ellipsis until it is at most width pixels wide.
func fit(s string, width int) string {
	if textWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 1 {
		r = r[:len(r)-1]
		if out := string(r) + "..."; textWidth(out) <= width {
			return out
		}
	}
	return string(r)
}
