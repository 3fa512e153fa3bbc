package generator

import (
	"github.com/gje4/vercel-bigcommerce/internal/domain"
)

// Placeholder heuristics.
const (
	minImageBytes     = 1024
	uniformSampleSize = 100
	uniformTolerance  = 10
	uniformRatio      = 0.8
)

// IsPlaceholder reports whether an image data URI looks like a placeholder
// rather than a photograph: any SVG, anything under minImageBytes once
// decoded, or near-uniform leading bytes (at least 80% of the first 100
// within 10 of their mean).
func IsPlaceholder(imageData string) bool {
	uri := domain.ParseDataURI(imageData)
	if uri.IsSVG() {
		return true
	}

	data, err := uri.Bytes()
	if err != nil || len(data) < minImageBytes {
		return true
	}

	return isNearUniform(data[:uniformSampleSize])
}

func isNearUniform(sample []byte) bool {
	if len(sample) == 0 {
		return true
	}

	sum := 0
	for _, b := range sample {
		sum += int(b)
	}
	mean := float64(sum) / float64(len(sample))

	near := 0
	for _, b := range sample {
		d := float64(b) - mean
		if d < 0 {
			d = -d
		}
		if d <= uniformTolerance {
			near++
		}
	}

	return float64(near) >= uniformRatio*float64(len(sample))
}
