package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// feedPrefixes mark a source line as a syndication feed.
var feedPrefixes = []string{"rss:", "feed:"}

// ParseList reads a newline-delimited source list. Blank lines and lines
// starting with '#' are ignored. Duplicates are collapsed, keeping the first.
func ParseList(r io.Reader) ([]Spec, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}
	return ParseLines(lines)
}

// ParseLines is ParseList over an in-memory slice. Line numbers in errors
// are 1-based.
func ParseLines(lines []string) ([]Spec, error) {
	var specs []Spec
	seen := make(map[Spec]bool)
	for i, line := range lines {
		spec, ok, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if !ok || seen[spec] {
			continue
		}
		seen[spec] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// ParseLine parses one source line. ok is false for blank and comment lines.
func ParseLine(line string) (spec Spec, ok bool, err error) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	if line == "" || strings.HasPrefix(line, "#") {
		return Spec{}, false, nil
	}

	kind := KindPage
	lower := strings.ToLower(line)
	for _, p := range feedPrefixes {
		if strings.HasPrefix(lower, p) {
			kind = KindFeed
			line = strings.TrimSpace(line[len(p):])
			break
		}
	}

	if err := validateURL(line); err != nil {
		return Spec{}, false, err
	}
	return Spec{Kind: kind, URL: line}, true, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("empty location")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}
