package ml

import (
	"regexp"
	"sort"
	"strings"
)

const (
	patternPrefix = "PATTERN:"
	maxWords      = 100
)

var wordRegex = regexp.MustCompile(`\p{L}{2,}`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by from up about
		into through during before after above below between among this that these those i you
		he she it we they me him her us them my your his its our their is am are was were be
		been being have has had do does did will would should could can may might`) {
		stopWords[w] = struct{}{}
	}
}

type pattern struct {
	name  string
	regex *regexp.Regexp
}

var patterns = []pattern{
	{"urgency", regexp.MustCompile(`(?i)\b(urgent|hurry|act now|limited time|don't wait|call now)\b`)},
	{"free_offers", regexp.MustCompile(`(?i)\b(free|no cost|gratis|complimentary)\b`)},
	{"money_mentions", regexp.MustCompile(`(?i)(\b(money|cash|dollars?)\b|[€£]|\$\d+)`)},
	{"call_to_action", regexp.MustCompile(`(?i)\b(click here|visit now|buy now|order today)\b`)},
	{"excessive_exclamation", regexp.MustCompile(`!{2,}`)},
	{"all_caps_words", regexp.MustCompile(`\b[A-Z]{3,}\b`)},
	{"urls", regexp.MustCompile(`(?i)https?://\S+`)},
	{"emails", regexp.MustCompile(`\b\w+@\w+\.\w+\b`)},
	{"phone_numbers", regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"adult_content", regexp.MustCompile(`(?i)\b(sex|porn|adult|xxx|viagra|casino|lottery|gambling)\b`)},
	{"lottery_language", regexp.MustCompile(`(?i)\b(winner|congratulations|selected|chosen|lucky)\b`)},
	{"guarantees", regexp.MustCompile(`(?i)\b(guarantee|guaranteed|promise|assured)\b`)},
	{"percentages", regexp.MustCompile(`\b\d{1,3}%`)},
	{"offers", regexp.MustCompile(`(?i)\b(save|discount|offer|deal|special|promotion)\b`)},
}

// Features extracts word and pattern counts from raw text. Words are lower-cased,
// stop words removed and only the most frequent words kept.
func Features(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		counts[w]++
	}

	if len(counts) > maxWords {
		words := make([]string, 0, len(counts))
		for w := range counts {
			words = append(words, w)
		}
		sort.Slice(words, func(i, j int) bool {
			if counts[words[i]] != counts[words[j]] {
				return counts[words[i]] > counts[words[j]]
			}
			return words[i] < words[j]
		})
		for _, w := range words[maxWords:] {
			delete(counts, w)
		}
	}

	for _, p := range patterns {
		if n := len(p.regex.FindAllStringIndex(text, -1)); n > 0 {
			counts[patternPrefix+p.name] = n
		}
	}
	return counts
}
