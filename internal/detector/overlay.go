package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

var classColors = map[string]color.RGBA{
	detection.LabelGlass:     {R: 0, G: 255, B: 0, A: 255},
	detection.LabelMetal:     {R: 255, G: 0, B: 0, A: 255},
	detection.LabelPaper:     {R: 0, G: 0, B: 255, A: 255},
	detection.LabelPlastic:   {R: 255, G: 255, B: 0, A: 255},
	detection.LabelUndefined: {R: 255, G: 0, B: 255, A: 255},
}

var defaultColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// ClassColor returns the overlay colour for a class.
func ClassColor(class string) color.RGBA {
	if c, ok := classColors[class]; ok {
		return c
	}
	return defaultColor
}

// Annotate draws a labelled bounding box for every result with a non-empty box.
func Annotate(frame *gocv.Mat, results []Result) {
	for _, r := range results {
		if r.Box.Empty() {
			continue
		}
		c := ClassColor(r.Detection.Class)
		gocv.Rectangle(frame, r.Box, c, 2)

		label := fmt.Sprintf("%s %.2f", r.Detection.Class, r.Detection.Confidence)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 2)
		bg := image.Rect(r.Box.Min.X, r.Box.Min.Y-size.Y-10, r.Box.Min.X+size.X, r.Box.Min.Y)
		gocv.Rectangle(frame, bg, c, -1)
		gocv.PutText(frame, label, image.Pt(r.Box.Min.X, r.Box.Min.Y-5), gocv.FontHersheySimplex, 0.5, defaultColor, 2)
	}
}
