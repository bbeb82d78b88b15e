package iplist

import (
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// Checker matches source addresses against static allow and deny lists
type Checker struct {
	allow  []netip.Prefix
	deny   []netip.Prefix
	logger *zap.Logger
}

// NewChecker creates a new checker. Entries may be single addresses or CIDR ranges.
func NewChecker(allow, deny []string, logger *zap.Logger) (*Checker, error) {
	allowPrefixes, err := parsePrefixes(allow)
	if err != nil {
		return nil, fmt.Errorf("failed to parse allow list: %w", err)
	}
	denyPrefixes, err := parsePrefixes(deny)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deny list: %w", err)
	}

	if logger != nil && (len(allowPrefixes) > 0 || len(denyPrefixes) > 0) {
		logger.Info("Initialized IP list checker",
			zap.Int("allow_count", len(allowPrefixes)),
			zap.Int("deny_count", len(denyPrefixes)))
	}

	return &Checker{
		allow:  allowPrefixes,
		deny:   denyPrefixes,
		logger: logger,
	}, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// IsAllowed reports whether ip is on the allow list
func (c *Checker) IsAllowed(ip string) bool {
	if c == nil {
		return false
	}
	return c.match(c.allow, ip)
}

// IsDenied reports whether ip is on the deny list. The deny list wins over the allow list.
func (c *Checker) IsDenied(ip string) bool {
	if c == nil {
		return false
	}
	return c.match(c.deny, ip)
}

// Empty reports whether both lists are empty
func (c *Checker) Empty() bool {
	return c == nil || (len(c.allow) == 0 && len(c.deny) == 0)
}

func (c *Checker) match(prefixes []netip.Prefix, ip string) bool {
	if len(prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			if c.logger != nil {
				c.logger.Debug("Address matched IP list", zap.String("ip", ip), zap.String("prefix", p.String()))
			}
			return true
		}
	}
	return false
}
