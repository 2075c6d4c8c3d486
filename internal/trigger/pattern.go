package trigger

import (
	"fmt"
	"strings"
)

// Pattern matches document paths such as "users/{uid}/watchlist/{appId}".
// Segments wrapped in braces are placeholders that match any single segment.
type Pattern struct {
	raw      string
	segments []string
}

// ParsePattern validates and compiles a path pattern.
func ParsePattern(raw string) (Pattern, error) {
	segments := strings.Split(raw, "/")
	if len(segments)%2 != 0 {
		return Pattern{}, fmt.Errorf("pattern %q must address documents, not collections", raw)
	}
	seen := make(map[string]bool)
	for _, s := range segments {
		if s == "" {
			return Pattern{}, fmt.Errorf("pattern %q has an empty segment", raw)
		}
		if name, ok := placeholder(s); ok {
			if name == "" || seen[name] {
				return Pattern{}, fmt.Errorf("pattern %q has an empty or repeated placeholder", raw)
			}
			seen[name] = true
		}
	}
	return Pattern{raw: raw, segments: segments}, nil
}

// MustParsePattern is ParsePattern for patterns known at compile time.
func MustParsePattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) String() string { return p.raw }

// Match reports whether path matches and returns the placeholder values.
func (p Pattern) Match(path string) (map[string]string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != len(p.segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range p.segments {
		if name, ok := placeholder(seg); ok {
			params[name] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func placeholder(segment string) (string, bool) {
	if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}
