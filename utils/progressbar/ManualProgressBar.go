// Package progressbar prints a textual progress bar to the terminal
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ManualProgressBar is a progress bar whose display must be driven by
// the caller: each completed iteration is registered with Increment,
// and Display reprints the bar. No concurrency is used.
type ManualProgressBar struct {
	width     int
	max       int
	progress  int
	startTime time.Time
}

// NewManualProgressBar returns a ManualProgressBar that is width
// characters wide and reaches 100% after max calls to Increment
func NewManualProgressBar(width, max int) *ManualProgressBar {
	return &ManualProgressBar{
		width:     width,
		max:       max,
		startTime: time.Now(),
	}
}

// Increment registers one completed iteration
func (p *ManualProgressBar) Increment() {
	if p.progress < p.max {
		p.progress++
	}
}

// Display reprints the progress bar on the current terminal line
func (p *ManualProgressBar) Display() {
	fraction := float64(p.progress) / float64(p.max)
	filled := int(fraction * float64(p.width))

	bar := strings.Repeat("█", filled) +
		strings.Repeat(" ", p.width-filled)
	elapsed := time.Since(p.startTime).Truncate(time.Second)

	fmt.Printf("\n\033[1A\033[K|%v| [%.2f%% | elapsed: %v]", bar,
		fraction*100, elapsed)
}
