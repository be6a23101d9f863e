package features

import (
	"strings"

	"github.com/mikey/phishguard/internal/core"
)

// MaxTyposquatDistance is the largest edit distance still treated as a typosquat
const MaxTyposquatDistance = 2

// EditDistance is the Levenshtein distance between a and b with unit costs
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// OwnsHost reports whether host is domain or one of its subdomains
func OwnsHost(domain, host string) bool {
	if domain == "" || host == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// FindImpersonation returns the first brand whose name appears in host
// while host is not served from that brand's domain.
func FindImpersonation(host string, brands []core.TrustedBrand) *core.TrustedBrand {
	if host == "" {
		return nil
	}
	for i := range brands {
		brand := brands[i]
		if brand.Name == "" || !strings.Contains(host, brand.Name) {
			continue
		}
		if OwnsHost(brand.Domain, host) {
			continue
		}
		return &brand
	}
	return nil
}

// FindTyposquat returns the first brand whose name is within
// MaxTyposquatDistance edits of base (but not equal to it).
func FindTyposquat(base string, brands []core.TrustedBrand) (*core.TrustedBrand, int) {
	if base == "" {
		return nil, 0
	}
	for i := range brands {
		brand := brands[i]
		if brand.Name == "" {
			continue
		}
		d := EditDistance(base, brand.Name)
		if d > 0 && d <= MaxTyposquatDistance {
			return &brand, d
		}
	}
	return nil, 0
}

// FindBrandMention returns the first brand named in text
func FindBrandMention(text string, brands []core.TrustedBrand) *core.TrustedBrand {
	for i := range brands {
		brand := brands[i]
		if brand.Name != "" && strings.Contains(text, brand.Name) {
			return &brand
		}
	}
	return nil
}
