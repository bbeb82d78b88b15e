package detector

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/mikey/submission-guard/internal/core"
)

// RuleAction is what a matching custom rule does to the decision
type RuleAction string

const (
	// RuleFlag adds the rule score to the content score
	RuleFlag RuleAction = "flag"
	// RuleQuarantine adds the rule score and holds the submission for review at least
	RuleQuarantine RuleAction = "quarantine"
	// RuleBlock adds the rule score and rejects the submission
	RuleBlock RuleAction = "block"
)

// CustomRule is an operator defined regular expression checked against submission fields
type CustomRule struct {
	Name    string
	Forms   []string
	Field   string
	Pattern string
	Action  RuleAction
	Score   float64
}

type compiledRule struct {
	CustomRule
	re    *regexp.Regexp
	forms map[string]struct{}
}

// RuleSet is a compiled list of custom rules. It is immutable and safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

// RuleMatch is the combined effect of the rules that matched one submission
type RuleMatch struct {
	Score      float64
	MinOutcome core.Outcome
	Triggers   []string
}

// NewRuleSet compiles rules. An empty Field or "*" checks every field and empty Forms
// applies the rule to every form. Problems are reported as *core.ConfigError.
func NewRuleSet(rules []CustomRule) (*RuleSet, error) {
	s := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		key := fmt.Sprintf("content.custom_rules[%d]", i)
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule_%d", i)
		}
		if r.Pattern == "" {
			return nil, &core.ConfigError{Key: key + ".pattern", Reason: "must not be empty"}
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, &core.ConfigError{Key: key + ".pattern", Reason: err.Error()}
		}

		r.Action = RuleAction(strings.ToLower(strings.TrimSpace(string(r.Action))))
		switch r.Action {
		case RuleFlag, RuleQuarantine, RuleBlock:
		case "":
			r.Action = RuleFlag
		default:
			return nil, &core.ConfigError{Key: key + ".action", Reason: fmt.Sprintf("unknown action %q", r.Action)}
		}
		if r.Score < 0 || r.Score > 1 || math.IsNaN(r.Score) {
			return nil, &core.ConfigError{Key: key + ".score", Reason: "must be in [0, 1]"}
		}

		c := compiledRule{CustomRule: r, re: re}
		if len(r.Forms) > 0 {
			c.forms = make(map[string]struct{}, len(r.Forms))
			for _, f := range r.Forms {
				c.forms[f] = struct{}{}
			}
		}
		s.rules = append(s.rules, c)
	}
	return s, nil
}

// Len returns the number of rules
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Match applies every rule for the submission's form. Each rule counts at most once.
func (s *RuleSet) Match(sub *core.Submission) RuleMatch {
	var m RuleMatch
	if s.Len() == 0 {
		return m
	}

	var all []string
	for _, r := range s.rules {
		if r.forms != nil {
			if _, ok := r.forms[sub.FormKey]; !ok {
				continue
			}
		}

		var fields []string
		if r.Field == "" || r.Field == "*" {
			if all == nil {
				all = sortedFields(sub)
			}
			fields = all
		} else {
			fields = []string{r.Field}
		}

		for _, name := range fields {
			if !r.re.MatchString(sub.Field(name)) {
				continue
			}
			m.Score += r.Score
			m.Triggers = append(m.Triggers, fmt.Sprintf("custom_rule:%s:%s", r.Name, name))
			switch r.Action {
			case RuleBlock:
				m.MinOutcome = core.OutcomeReject
			case RuleQuarantine:
				if m.MinOutcome != core.OutcomeReject {
					m.MinOutcome = core.OutcomeQuarantine
				}
			}
			break
		}
	}
	return m
}

func sortedFields(sub *core.Submission) []string {
	names := make([]string, 0, len(sub.Fields))
	for k := range sub.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
