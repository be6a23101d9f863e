package whitelist

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/core"
)

// Checker decides whether a host belongs to a trusted domain
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new whitelist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalizedDomains := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
		d = strings.TrimSuffix(d, ".")
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		normalizedDomains = append(normalizedDomains, d)
	}

	if len(normalizedDomains) > 0 && logger != nil {
		logger.Info("Initialized whitelist checker", zap.Strings("domains", normalizedDomains))
	}

	return &Checker{
		domains: normalizedDomains,
		logger:  logger,
	}
}

// NewBrandChecker trusts every brand domain plus the extra domains
func NewBrandChecker(brands []core.TrustedBrand, extra []string, logger *zap.Logger) *Checker {
	domains := make([]string, 0, len(brands)+len(extra))
	for _, brand := range brands {
		domains = append(domains, brand.Domain)
	}
	return NewChecker(append(domains, extra...), logger)
}

// IsTrustedHost reports whether host equals a trusted domain or is one of its subdomains
func (c *Checker) IsTrustedHost(host string) bool {
	if len(c.domains) == 0 || host == "" {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	for _, whitelisted := range c.domains {
		if host == whitelisted || strings.HasSuffix(host, "."+whitelisted) {
			if c.logger != nil {
				c.logger.Debug("Host is whitelisted",
					zap.String("host", host),
					zap.String("domain", whitelisted))
			}
			return true
		}
	}

	return false
}

// Domains returns the normalized trusted domains
func (c *Checker) Domains() []string {
	return append([]string(nil), c.domains...)
}
