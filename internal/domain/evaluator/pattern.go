package evaluator

import (
	"regexp"
	"strings"
)

// CompiledPattern is a URI template compiled into a matcher plus the
// specificity inputs needed to rank competing matches (spec.md §4.8).
type CompiledPattern struct {
	Source     string
	re         *regexp.Regexp
	Segments   int
	Wildcards  int
	Variables  int
	VarNames   []string
}

var varNameRe = regexp.MustCompile(`\{([^/{}]+)\}`)

// Compile translates a URI template into a CompiledPattern: `*` becomes
// `.*`, `{name}` becomes a named capture group `(?P<name>[^/]+)`.
func Compile(template string) (*CompiledPattern, error) {
	var varNames []string

	escaped := regexp.QuoteMeta(template)

	// QuoteMeta escapes the braces and the asterisk; undo the escaping on
	// the tokens we interpret ourselves before substituting.
	escaped = strings.ReplaceAll(escaped, `\*`, `*`)
	escaped = strings.ReplaceAll(escaped, `\{`, `{`)
	escaped = strings.ReplaceAll(escaped, `\}`, `}`)

	pattern := varNameRe.ReplaceAllStringFunc(escaped, func(tok string) string {
		name := varNameRe.FindStringSubmatch(tok)[1]
		varNames = append(varNames, name)

		return "(?P<" + name + `>[^/]+)`
	})

	pattern = strings.ReplaceAll(pattern, "*", ".*")
	pattern = "^" + pattern + "$"

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	return &CompiledPattern{
		Source:    template,
		re:        re,
		Segments:  len(strings.Split(strings.Trim(template, "/"), "/")),
		Wildcards: strings.Count(template, "*"),
		Variables: len(varNames),
		VarNames:  varNames,
	}, nil
}

// Match reports whether uri matches the pattern and, if so, the extracted
// path variables.
func (c *CompiledPattern) Match(uri string) (map[string]string, bool) {
	match := c.re.FindStringSubmatch(uri)
	if match == nil {
		return nil, false
	}

	vars := make(map[string]string, len(c.VarNames))

	for i, name := range c.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}

		vars[name] = match[i]
	}

	return vars, true
}

// MoreSpecific reports whether a ranks strictly more specific than b, using
// the ordering from spec.md §4.8: exact match preferred, then more path
// segments, then fewer wildcards, then fewer variables, ties broken by a
// longer URI string.
func MoreSpecific(a, b *CompiledPattern, uri string) bool {
	aExact := a.Source == uri
	bExact := b.Source == uri

	if aExact != bExact {
		return aExact
	}

	if a.Segments != b.Segments {
		return a.Segments > b.Segments
	}

	if a.Wildcards != b.Wildcards {
		return a.Wildcards < b.Wildcards
	}

	if a.Variables != b.Variables {
		return a.Variables < b.Variables
	}

	return len(a.Source) > len(b.Source)
}
