package detector

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
)

var urlRegex = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()]+`)

// ContentConfig holds the content scoring weights and thresholds
type ContentConfig struct {
	KeywordWeight      float64
	KeywordSaturation  int
	URLWeight          float64
	URLThreshold       int
	CapsWeight         float64
	CapsRatio          float64
	CapsMinLetters     int
	RepeatWeight       float64
	RepeatRunLength    int
	BlockedDomainScore float64
	FuzzyMinLength     int
	EmailField         string
	CustomRules        []CustomRule
}

// DefaultContentConfig returns the production defaults
func DefaultContentConfig() ContentConfig {
	return ContentConfig{
		KeywordWeight:      0.6,
		KeywordSaturation:  2,
		URLWeight:          0.5,
		URLThreshold:       3,
		CapsWeight:         0.2,
		CapsRatio:          0.7,
		CapsMinLetters:     20,
		RepeatWeight:       0.2,
		RepeatRunLength:    4,
		BlockedDomainScore: 0.7,
		FuzzyMinLength:     5,
		EmailField:         "email",
	}
}

// ContentAnalyzer scores free text for spam markers. It is pure and safe for concurrent use.
type ContentAnalyzer struct {
	cfg     ContentConfig
	terms   []term
	words   map[string]term
	fuzzy   []term
	blocked []string
	rules   *RuleSet
	text    *utils.TextProcessor
}

// NewContentAnalyzer creates a content analyzer over lex
func NewContentAnalyzer(lex *Lexicon, cfg ContentConfig, text *utils.TextProcessor) (*ContentAnalyzer, error) {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if cfg.URLThreshold <= 0 {
		return nil, &core.ConfigError{Key: "content.url_threshold", Reason: "must be positive"}
	}
	if cfg.BlockedDomainScore < 0 || cfg.BlockedDomainScore > 1 {
		return nil, &core.ConfigError{Key: "content.blocked_domain_score", Reason: "must be in [0, 1]"}
	}
	if cfg.KeywordSaturation <= 0 {
		cfg.KeywordSaturation = 1
	}
	if text == nil {
		text = utils.NewTextProcessor(nil)
	}
	rules, err := NewRuleSet(cfg.CustomRules)
	if err != nil {
		return nil, err
	}

	a := &ContentAnalyzer{
		cfg:   cfg,
		words: make(map[string]term),
		rules: rules,
		text:  text,
	}
	for _, t := range lex.terms(text.Normalize) {
		if t.phrase {
			a.terms = append(a.terms, t)
			continue
		}
		a.words[t.text] = t
		if len([]rune(t.text)) >= cfg.FuzzyMinLength {
			a.fuzzy = append(a.fuzzy, t)
		}
	}
	for _, d := range lex.BlockedDomains {
		if d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), "."); d != "" {
			a.blocked = append(a.blocked, d)
		}
	}
	return a, nil
}

// Name returns the detector name
func (a *ContentAnalyzer) Name() string { return core.DetectorContent }

// Evaluate scores the submission's free-text fields and applies the custom rules for its form
func (a *ContentAnalyzer) Evaluate(_ context.Context, sub *core.Submission) (core.SignalResult, error) {
	res := a.Analyze(sub.Text(), sub.Field(a.cfg.EmailField))
	res.Available = true

	if m := a.rules.Match(sub); len(m.Triggers) > 0 {
		res.Score = math.Min(1, res.Score+m.Score)
		res.MinOutcome = m.MinOutcome
		res.Triggers = append(res.Triggers, m.Triggers...)
		res.Reason = fmt.Sprintf("content markers: %s", strings.Join(res.Triggers, ", "))
	}
	return res, nil
}

// Analyze scores raw text and an optional sender email address
func (a *ContentAnalyzer) Analyze(raw, email string) core.SignalResult {
	normalized := a.text.Normalize(raw)
	var triggers []string

	hits := a.termHits(normalized)
	for _, h := range hits {
		triggers = append(triggers, "keyword:"+h)
	}
	kwSignal := math.Min(1, float64(len(hits))/float64(a.cfg.KeywordSaturation))

	urls := distinctURLs(normalized)
	var urlSignal float64
	if len(urls) >= a.cfg.URLThreshold {
		urlSignal = math.Min(1, 0.6+0.2*float64(len(urls)-a.cfg.URLThreshold))
		triggers = append(triggers, fmt.Sprintf("urls:%d", len(urls)))
	}

	var capsSignal float64
	if ratio, letters := upperRatio(raw); letters > a.cfg.CapsMinLetters && ratio > a.cfg.CapsRatio {
		capsSignal = 1
		triggers = append(triggers, "caps_ratio")
	}

	var repeatSignal float64
	if runs := repeatedRuns(raw, a.cfg.RepeatRunLength); runs > 0 {
		repeatSignal = math.Min(1, float64(runs)/2)
		triggers = append(triggers, "repeated_chars")
	}

	score := a.cfg.KeywordWeight*kwSignal +
		a.cfg.URLWeight*urlSignal +
		a.cfg.CapsWeight*capsSignal +
		a.cfg.RepeatWeight*repeatSignal

	blocked := a.blockedDomains(urls, email)
	for _, d := range blocked {
		triggers = append(triggers, "blocked_domain:"+d)
	}
	if len(blocked) > 0 && score < a.cfg.BlockedDomainScore {
		score = a.cfg.BlockedDomainScore
	}

	score = math.Max(0, math.Min(1, score))
	reason := "no content markers"
	if len(triggers) > 0 {
		reason = fmt.Sprintf("content markers: %s", strings.Join(triggers, ", "))
	}
	return core.SignalResult{Score: score, Reason: reason, Triggers: triggers}
}

// termHits returns the distinct lexicon terms found in normalized text.
// Single words also match at edit distance one when the token carries a digit
// or the word is long enough that a single edit is unlikely to be a different word.
func (a *ContentAnalyzer) termHits(normalized string) []string {
	var hits []string
	found := make(map[string]struct{})
	add := func(t string) {
		if _, ok := found[t]; !ok {
			found[t] = struct{}{}
			hits = append(hits, t)
		}
	}

	tokens := a.text.Tokenize(normalized)
	joined := " " + strings.Join(tokens, " ") + " "
	for _, t := range a.terms {
		if strings.Contains(joined, " "+t.text+" ") {
			add(t.text)
		}
	}

	for _, tok := range tokens {
		if t, ok := a.words[tok]; ok {
			add(t.text)
			continue
		}
		n := len([]rune(tok))
		if n < a.cfg.FuzzyMinLength {
			continue
		}
		digits := strings.IndexFunc(tok, unicode.IsDigit) >= 0
		for _, t := range a.fuzzy {
			if _, ok := found[t.text]; ok {
				continue
			}
			if !digits && len([]rune(t.text)) < a.cfg.FuzzyMinLength+2 {
				continue
			}
			if levenshtein.ComputeDistance(tok, t.text) <= 1 {
				add(t.text)
			}
		}
	}
	return hits
}

func distinctURLs(normalized string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range urlRegex.FindAllString(normalized, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func urlHost(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

func (a *ContentAnalyzer) blockedDomains(urls []string, email string) []string {
	if len(a.blocked) == 0 {
		return nil
	}
	hosts := make([]string, 0, len(urls)+1)
	for _, u := range urls {
		if h := urlHost(u); h != "" {
			hosts = append(hosts, h)
		}
	}
	if at := strings.LastIndex(email, "@"); at >= 0 {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(email[at+1:])))
	}

	var out []string
	seen := make(map[string]struct{})
	for _, h := range hosts {
		for _, d := range a.blocked {
			if h == d || strings.HasSuffix(h, "."+d) {
				if _, ok := seen[d]; !ok {
					seen[d] = struct{}{}
					out = append(out, d)
				}
			}
		}
	}
	return out
}

// upperRatio returns the share of upper-case letters and the number of letters
func upperRatio(s string) (float64, int) {
	var letters, upper int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0, 0
	}
	return float64(upper) / float64(letters), letters
}

// repeatedRuns counts runs of one non-space character at least minRun long
func repeatedRuns(s string, minRun int) int {
	if minRun < 2 {
		minRun = 2
	}
	runs, length := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev && !unicode.IsSpace(r) {
			length++
		} else {
			if length >= minRun {
				runs++
			}
			length = 1
		}
		prev = r
	}
	if length >= minRun {
		runs++
	}
	return runs
}
