package usecase

import (
	"regexp"
	"strings"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// FilterResult is the outcome of running the content filter
type FilterResult struct {
	Text    string
	Blocked bool
	Match   string // blocked word that matched
}

type compiledReplacement struct {
	re         *regexp.Regexp
	substitute string
}

// ContentFilter is a compiled, immutable rule set. Safe for concurrent use.
type ContentFilter struct {
	blocked      []string // lowercased
	replacements []compiledReplacement
}

// NewContentFilter compiles a rule set. Empty blocked words and empty
// replacement originals are ignored.
func NewContentFilter(rules domain.FilterRules) *ContentFilter {
	f := &ContentFilter{}
	for _, w := range rules.BlockedWords {
		if w == "" {
			continue
		}
		f.blocked = append(f.blocked, strings.ToLower(w))
	}
	for _, r := range rules.Replacements {
		if r.Original == "" {
			continue
		}
		f.replacements = append(f.replacements, compiledReplacement{
			re:         regexp.MustCompile("(?i)" + regexp.QuoteMeta(r.Original)),
			substitute: r.Substitute,
		})
	}
	return f
}

// Apply filters text. Invalid UTF-8 is replaced, never rejected.
func (f *ContentFilter) Apply(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}

	text = normalizeText(text)

	lower := strings.ToLower(text)
	for _, w := range f.blocked {
		if strings.Contains(lower, w) {
			return FilterResult{Blocked: true, Match: w}
		}
	}

	for _, r := range f.replacements {
		text = r.re.ReplaceAllLiteralString(text, r.substitute)
	}
	return FilterResult{Text: text}
}

// Rules reports the active rule counts
func (f *ContentFilter) Rules() (blocked, replacements int) {
	return len(f.blocked), len(f.replacements)
}

func normalizeText(text string) string {
	return strings.ToValidUTF8(text, "�")
}
