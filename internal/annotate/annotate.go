// internal/annotate/annotate.go
package annotate

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
)

var (
	Red    = color.RGBA{R: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
	Green  = color.RGBA{G: 255, A: 255}
	Cyan   = color.RGBA{G: 255, B: 255, A: 255}
)

// CaptionY is the top of caption text.
const CaptionY = 10

// BoxColor picks the outline color for an outcome code: red for no match,
// green for a matched or enrolling identity, yellow otherwise.
func BoxColor(code int) color.RGBA {
	switch {
	case code < 0:
		return Red
	case code > 0:
		return Green
	}
	return Yellow
}

// DrawBoxes outlines every face in img.
func DrawBoxes(img *imaging.WorkingImage, faces detect.FaceBoxSet, code int) {
	c := BoxColor(code)
	for _, b := range faces.Boxes {
		r := b.Rect()
		hline(img, r.Min.X, r.Max.X-1, r.Min.Y, c)
		hline(img, r.Min.X, r.Max.X-1, r.Max.Y-1, c)
		vline(img, r.Min.X, r.Min.Y, r.Max.Y-1, c)
		vline(img, r.Max.X-1, r.Min.Y, r.Max.Y-1, c)
	}
}

func hline(img *imaging.WorkingImage, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGB(x, y, c.R, c.G, c.B)
	}
}

func vline(img *imaging.WorkingImage, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGB(x, y, c.R, c.G, c.B)
	}
}

// Caption draws text horizontally centered with its top at CaptionY.
func Caption(img *imaging.WorkingImage, c color.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
	}
	width := d.MeasureString(text).Round()
	x := (img.Width - width) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.P(x, CaptionY+face.Metrics().Ascent.Round())
	d.DrawString(text)
}
