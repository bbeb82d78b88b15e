package notify

import (
	"fmt"
	"strings"

	"github.com/mikey/submission-guard/internal/core"
)

// FormatEvent renders a decision event as an alert title and body
func FormatEvent(event core.DecisionEvent, anon *Anonymizer) (string, string) {
	title := fmt.Sprintf("Submission %s on form %s", event.Outcome, event.FormKey)

	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s\n", event.DecisionID)
	fmt.Fprintf(&b, "Outcome: %s (score %.2f)\n", event.Outcome, event.CombinedScore)
	fmt.Fprintf(&b, "Source: %s\n", anon.IP(event.SourceIP))
	fmt.Fprintf(&b, "Decided at: %s\n", event.DecidedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	b.WriteString("Evidence:\n")
	for _, s := range event.Signals {
		status := fmt.Sprintf("%.2f", s.Score)
		switch {
		case s.HardRule:
			status = "hard rule"
		case !s.Available:
			status = "n/a"
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", s.Detector, status, s.Reason)
	}
	return title, strings.TrimRight(b.String(), "\n")
}
