package ui

import "strings"

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders samples as a single line of block characters at most
// width runes wide. Longer input is averaged into width buckets; the
// vertical range is scaled to the visible samples.
func Sparkline(samples []float64, width int) string {
	if len(samples) == 0 || width <= 0 {
		return ""
	}

	points := samples
	if len(samples) > width {
		points = make([]float64, width)
		for i := range points {
			lo := i * len(samples) / width
			hi := (i + 1) * len(samples) / width
			sum := 0.0
			for _, v := range samples[lo:hi] {
				sum += v
			}
			points[i] = sum / float64(hi-lo)
		}
	}

	min, max := points[0], points[0]
	for _, v := range points[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	top := len(sparkLevels) - 1
	var b strings.Builder
	for _, v := range points {
		level := 0
		if max > min {
			level = int((v-min)/(max-min)*float64(top) + 0.5)
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}
