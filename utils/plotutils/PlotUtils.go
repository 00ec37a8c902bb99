// Package plotutils implements functionality for plotting experiment
// data to image files
package plotutils

import (
	"fmt"

	"github.com/fogleman/gg"
	"github.com/samuelfneumann/goppo/utils/floatutils"
)

const (
	plotWidth  int = 640
	plotHeight int = 480
	margin         = 48.0
)

// Line plots a single data series as a line chart and saves it as a
// PNG at the argument filename. The x-axis is the index of each datum
// in the series.
func Line(data []float64, title, filename string) error {
	if len(data) < 2 {
		return fmt.Errorf("line: need at least 2 points to plot, have %v",
			len(data))
	}

	min := floatutils.Min(data...)
	max := floatutils.Max(data...)
	if max == min {
		max = min + 1.0
	}

	w, h := float64(plotWidth), float64(plotHeight)
	dc := gg.NewContext(plotWidth, plotHeight)

	// Background
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// Axes
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(margin, margin, margin, h-margin)
	dc.DrawLine(margin, h-margin, w-margin, h-margin)
	dc.Stroke()

	dc.DrawStringAnchored(title, w/2, margin/2, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f", max), margin-4, margin, 1.0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.2f", min), margin-4, h-margin, 1.0,
		0.5)

	// Data series
	toX := func(i int) float64 {
		return margin + float64(i)/float64(len(data)-1)*(w-2*margin)
	}
	toY := func(v float64) float64 {
		return h - margin - (v-min)/(max-min)*(h-2*margin)
	}

	dc.SetRGB(0.122, 0.467, 0.706)
	dc.SetLineWidth(2)
	for i := 1; i < len(data); i++ {
		dc.DrawLine(toX(i-1), toY(data[i-1]), toX(i), toY(data[i]))
	}
	dc.Stroke()

	return dc.SavePNG(filename)
}
