package categorize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Confidence tiers for locally assigned categories.
const (
	KeywordConfidence   = 0.6
	DefaultConfidence   = 0.2
	FailsafeConfidence  = 0.1
	DefaultCategoryName = "Other"
)

// KeywordRule maps merchant keywords to a category.
type KeywordRule struct {
	Category string
	Keywords []string
	Priority int // higher priority rules are checked first
}

type compiledRule struct {
	regex *regexp.Regexp
	KeywordRule
}

// LocalMatcher categorizes merchants with a fixed keyword table. Keywords
// match anywhere in the text, case-insensitively. It is safe for concurrent use.
type LocalMatcher struct {
	rules []compiledRule
}

// LocalMatch is a keyword match result.
type LocalMatch struct {
	Category   string
	Keyword    string // empty when no rule matched
	Confidence float64
}

// Matched reports whether a keyword rule matched.
func (m LocalMatch) Matched() bool {
	return m.Keyword != ""
}

// NewLocalMatcher compiles the given rules into a matcher.
func NewLocalMatcher(rules []KeywordRule) (*LocalMatcher, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &LocalMatcher{rules: compiled}, nil
}

// MustDefaultMatcher returns a matcher over DefaultKeywordRules.
func MustDefaultMatcher() *LocalMatcher {
	m, err := NewLocalMatcher(DefaultKeywordRules())
	if err != nil {
		panic(err)
	}
	return m
}

func compileRules(rules []KeywordRule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if len(r.Keywords) == 0 {
			continue
		}
		quoted := make([]string, len(r.Keywords))
		for i, kw := range r.Keywords {
			quoted[i] = regexp.QuoteMeta(strings.ToLower(kw))
		}
		regex, err := regexp.Compile("(?i)" + strings.Join(quoted, "|"))
		if err != nil {
			return nil, fmt.Errorf("failed to compile keywords for %s: %w", r.Category, err)
		}
		compiled = append(compiled, compiledRule{KeywordRule: r, regex: regex})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return compiled, nil
}

// Match finds the first rule whose keyword appears in the merchant or
// description. It never fails; unmatched text yields the default category.
func (m *LocalMatcher) Match(merchant, description string) LocalMatch {
	text := strings.ToLower(strings.TrimSpace(merchant + " " + description))
	if text != "" {
		for _, r := range m.rules {
			if kw := r.regex.FindString(text); kw != "" {
				return LocalMatch{
					Category:   r.Category,
					Keyword:    kw,
					Confidence: KeywordConfidence,
				}
			}
		}
	}

	return LocalMatch{Category: DefaultCategoryName, Confidence: DefaultConfidence}
}
