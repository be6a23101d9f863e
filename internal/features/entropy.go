package features

import (
	"math"
	"strings"
)

// HighEntropyThreshold marks hosts whose characters look randomly generated
const HighEntropyThreshold = 4.0

var separatorRemover = strings.NewReplacer(".", "", "-", "", "_", "")

// ShannonEntropy returns -Σ p·log2(p) over the byte distribution of s
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	var entropy float64
	total := float64(len(s))
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / total
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// HostEntropy computes the entropy of a host with separators removed
func HostEntropy(host string) float64 {
	return ShannonEntropy(separatorRemover.Replace(host))
}
