package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/config"
)

// filter decides which keys of one source are in scope.
type filter struct {
	include  *regexp.Regexp
	excludes []*regexp.Regexp
}

// newFilter compiles the include pattern, which must match a whole key,
// and the exclude rules of sourceType, which match anywhere in a key.
func newFilter(sourceType, include, defaultInclude string, rules []config.ExcludeRule) (*filter, error) {
	if include == "" {
		include = defaultInclude
	}
	f := &filter{}
	if include != "" {
		re, err := regexp.Compile(`^(?:` + include + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid Regex %q: %w", include, err)
		}
		f.include = re
	}
	for _, rule := range rules {
		if !strings.EqualFold(rule.TemplateSourceType, sourceType) {
			continue
		}
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid Exclude Regex %q: %w", rule.Regex, err)
		}
		f.excludes = append(f.excludes, re)
	}
	return f, nil
}

func (f *filter) keep(key string) bool {
	if f.include != nil && !f.include.MatchString(key) {
		return false
	}
	for _, re := range f.excludes {
		if re.MatchString(key) {
			return false
		}
	}
	return true
}
