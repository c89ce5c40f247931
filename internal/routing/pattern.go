package routing

import (
	"fmt"
	"regexp"
	"strings"
)

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Pattern is a compiled route path such as /api/enterprises/:id. Parameter
// names come from the segment they were declared in; literal segments are
// quoted so they never act as regex syntax.
type Pattern struct {
	raw    string
	re     *regexp.Regexp
	params []string
}

// CompilePattern parses a path pattern with :name segments.
func CompilePattern(raw string) (Pattern, error) {
	if raw == "" || raw[0] != '/' {
		return Pattern{}, fmt.Errorf("pattern %q must start with /", raw)
	}
	segments := splitPathSegments(raw)
	parts := make([]string, 0, len(segments))
	var params []string
	seen := make(map[string]struct{})
	for _, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("pattern %q has an empty segment", raw)
		}
		if !strings.HasPrefix(seg, ":") {
			parts = append(parts, regexp.QuoteMeta(seg))
			continue
		}
		name := seg[1:]
		if !paramName.MatchString(name) {
			return Pattern{}, fmt.Errorf("pattern %q has invalid parameter %q", raw, seg)
		}
		if _, dup := seen[name]; dup {
			return Pattern{}, fmt.Errorf("pattern %q repeats parameter %q", raw, name)
		}
		seen[name] = struct{}{}
		params = append(params, name)
		parts = append(parts, `([^/]+)`)
	}
	re, err := regexp.Compile("^/" + strings.Join(parts, "/") + "$")
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, re: re, params: params}, nil
}

// String returns the pattern as registered.
func (p Pattern) String() string { return p.raw }

// Params returns the parameter names in declaration order.
func (p Pattern) Params() []string { return append([]string(nil), p.params...) }

// Match reports whether path matches and returns the captured parameters.
func (p Pattern) Match(path string) (map[string]string, bool) {
	if p.re == nil {
		return nil, false
	}
	groups := p.re.FindStringSubmatch(normalizePath(path))
	if groups == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.params))
	for i, name := range p.params {
		params[name] = groups[i+1]
	}
	return params, true
}

func splitPathSegments(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}
