package detector

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon lists suspicious terms by category and destination domains that are never legitimate
type Lexicon struct {
	Categories     map[string][]string `yaml:"categories"`
	BlockedDomains []string            `yaml:"blocked_domains"`
}

// DefaultLexicon returns the built-in term and domain lists
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Categories: map[string][]string{
			"financial": {"free money", "make money fast", "wire transfer", "bitcoin investment", "double your income", "loan approved", "guaranteed money", "guaranteed income", "get rich"},
			"pharma":    {"viagra", "cialis", "pharmacy", "weight loss pills"},
			"gambling":  {"casino", "lottery", "jackpot", "betting odds"},
			"adult":     {"porn", "sex", "xxx", "adult dating"},
			"urgency":   {"click here", "urgent", "act now", "limited time", "you have won"},
		},
		BlockedDomains: []string{"spam.com", "tempmail.org", "guerrillamail.com"},
	}
}

// LoadLexicon reads a lexicon from a YAML file
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon: %w", err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	if len(lex.Categories) == 0 && len(lex.BlockedDomains) == 0 {
		return nil, fmt.Errorf("lexicon %s is empty", path)
	}
	return &lex, nil
}

type term struct {
	text     string
	category string
	phrase   bool
}

// terms flattens the categories with normalize applied, in a stable order
func (l *Lexicon) terms(normalize func(string) string) []term {
	categories := make([]string, 0, len(l.Categories))
	for c := range l.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	seen := make(map[string]struct{})
	var out []term
	for _, c := range categories {
		for _, t := range l.Categories[c] {
			n := strings.Join(strings.Fields(normalize(t)), " ")
			if n == "" {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, term{text: n, category: c, phrase: strings.Contains(n, " ")})
		}
	}
	return out
}
