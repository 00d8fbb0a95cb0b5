package research

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	urlRe         = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	refTitleRe    = regexp.MustCompile(`\[(\d+)\]\s*([^\n]+?)\s+-\s*(https?://[^\s<>"')\]]+)`)
	refURLOnlyRe  = regexp.MustCompile(`\[(\d+)\]\s*(https?://[^\s<>"')\]]+)`)
	citeTitleRe   = regexp.MustCompile(`^\[\d+\]\s*(.+?)\s*-\s*https?://`)
	numberedRefRe = regexp.MustCompile(`^\[\d+\]`)
)

// Citation is the presentation form of one raw citation string.
type Citation struct {
	ID        int    `json:"id"`
	Raw       string `json:"raw"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Formatted string `json:"formatted"`
}

// ExtractURL returns the first http(s) URL in s without trailing punctuation.
func ExtractURL(s string) string {
	u := urlRe.FindString(s)
	return strings.TrimRight(u, ".,;:!?")
}

// ParseCitation is best effort: any string is accepted, and URL and Title
// stay empty when they cannot be recognised.
func ParseCitation(id int, raw string) Citation {
	raw = strings.TrimSpace(raw)
	c := Citation{ID: id, Raw: raw, Formatted: FormatCitation(id, raw)}

	c.URL = ExtractURL(raw)
	if c.URL == "" {
		return c
	}
	if strings.HasPrefix(raw, "[") {
		if m := citeTitleRe.FindStringSubmatch(raw); m != nil {
			c.Title = strings.TrimSpace(m[1])
		}
	}
	if c.Title == "" {
		c.Title = c.URL
	}
	return c
}

// FormatCitation numbers a citation unless it already carries a [n] prefix.
func FormatCitation(id int, raw string) string {
	raw = strings.TrimSpace(raw)
	if numberedRefRe.MatchString(raw) {
		return raw
	}
	return fmt.Sprintf("[%d] %s", id, raw)
}

// ExtractCitations collects references from report text: "[n] Title - URL"
// lines first, then lines of a Sources section, then bare URLs. Duplicates
// are dropped by URL, or by lower-cased text when there is no URL.
func ExtractCitations(content string) []string {
	var candidates []string

	for _, m := range refTitleRe.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, fmt.Sprintf("[%s] %s - %s", m[1], strings.TrimSpace(m[2]), m[3]))
	}
	for _, m := range refURLOnlyRe.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, fmt.Sprintf("[%s] %s", m[1], m[2]))
	}
	if m := sourcesRe.FindStringSubmatch(content); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(strings.TrimLeft(line, "-*• "))
			if line != "" && (strings.HasPrefix(line, "[") || strings.Contains(line, "http")) {
				candidates = append(candidates, line)
			}
		}
	}
	for _, u := range urlRe.FindAllString(content, -1) {
		candidates = append(candidates, strings.TrimRight(u, ".,;:!?"))
	}

	seenURL := make(map[string]bool)
	seenText := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		if u := ExtractURL(c); u != "" {
			if seenURL[u] {
				continue
			}
			seenURL[u] = true
		} else {
			key := strings.ToLower(strings.TrimSpace(c))
			if seenText[key] {
				continue
			}
			seenText[key] = true
		}
		out = append(out, c)
	}
	return out
}
