package detector

import (
	"context"
	"sort"
	"strings"

	"github.com/mikey/submission-guard/internal/core"
)

// DefaultHoneypotFields are decoy field names hidden from human visitors
var DefaultHoneypotFields = []string{"_honeypot", "_hp", "_bot_check", "_email_confirm"}

// Honeypot rejects submissions that fill in any decoy field
type Honeypot struct {
	fields []string
}

// NewHoneypot creates a honeypot gate that also inspects the named regular fields
func NewHoneypot(fields []string) *Honeypot {
	return &Honeypot{fields: fields}
}

// Name returns the detector name
func (h *Honeypot) Name() string { return core.DetectorHoneypot }

// Evaluate trips when any decoy value is non-empty after trimming whitespace
func (h *Honeypot) Evaluate(_ context.Context, sub *core.Submission) (core.SignalResult, error) {
	var filled []string
	for name, v := range sub.HoneypotValues {
		if strings.TrimSpace(v) != "" {
			filled = append(filled, name)
		}
	}
	for _, name := range h.fields {
		if _, seen := sub.HoneypotValues[name]; seen {
			continue
		}
		if strings.TrimSpace(sub.Field(name)) != "" {
			filled = append(filled, name)
		}
	}

	if len(filled) == 0 {
		return core.SignalResult{Score: 0, Available: true, Reason: "decoy fields empty"}, nil
	}
	sort.Strings(filled)
	return core.SignalResult{
		Score:     1.0,
		HardRule:  true,
		Available: true,
		Reason:    "honeypot field filled: " + strings.Join(filled, ", "),
		Triggers:  filled,
	}, nil
}
