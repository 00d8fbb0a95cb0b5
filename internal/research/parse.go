package research

import (
	"regexp"
	"strings"
)

var (
	// Section bodies start after a heading-like line and run to the next heading.
	summaryRe   = regexp.MustCompile(`(?ims)^[#*\s]*(?:executive summary|summary)\b[^\n]*\n\s*(.+?)(?:\n\s*\n|\n#|\z)`)
	featuresRe  = regexp.MustCompile(`(?ims)^[#*\s]*(?:key features|product features|features)\b[^\n]*\n\s*(.+?)(?:\n#|\z)`)
	sentimentRe = regexp.MustCompile(`(?ims)^[#*\s]*(?:customer sentiment|sentiment|public opinion)\b[^\n]*\n\s*(.+?)(?:\n#|\z)`)
	insightsRe  = regexp.MustCompile(`(?ims)^[#*\s]*(?:actionable insights|strategic recommendations|recommendations)\b[^\n]*\n\s*(.+?)(?:\n#|\z)`)
	sourcesRe   = regexp.MustCompile(`(?ims)^[#*\s]*(?:sources and references|references|citations)\b[^\n]*\n\s*(.+?)(?:\n---|\n#|\z)`)

	bulletRe   = regexp.MustCompile(`(?m)^\s*[-*•]\s+(.+?)\s*$`)
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+?)\s*$`)

	trailerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?s)This report synthesizes.*$`),
		regexp.MustCompile(`(?s)\*Analysis completed.*$`),
	}
)

var (
	envelopeStarts = []string{
		"output=# Executive Summary",
		"output=# Market Research Analysis",
		"output=## Executive Summary",
		"output=## Key Strategic Insights",
		"output=#",
		"output=",
	}
	envelopeEnds = []string{", session_id=", ", intermediate_steps=", "\n\n---\n"}
)

// CleanContent strips agent-framework envelopes such as
// "AgentResponse(output=..., session_id=...)" and trailing boilerplate.
// Text without an envelope is returned trimmed.
func CleanContent(raw string) string {
	start := -1
	for _, marker := range envelopeStarts {
		if i := strings.Index(raw, marker); i >= 0 {
			start = i + len("output=")
			break
		}
	}
	if start < 0 {
		return strings.TrimSpace(raw)
	}

	end := len(raw)
	for _, marker := range envelopeEnds {
		if i := strings.Index(raw[start:], marker); i >= 0 {
			end = start + i
			break
		}
	}
	out := raw[start:end]
	for _, re := range trailerRes {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}

// ParseReport extracts the structured fields of a markdown report. It never
// fails: fields it cannot find are left empty and NarrativeText always holds content.
func ParseReport(content string) *Report {
	r := &Report{
		NarrativeText: content,
		Sentiment:     Sentiment{Overall: "neutral", Confidence: 5},
	}

	if m := summaryRe.FindStringSubmatch(content); m != nil {
		r.Summary = strings.TrimSpace(m[1])
	} else {
		for _, p := range strings.Split(content, "\n\n") {
			if p = strings.TrimSpace(p); len(p) > 50 && !strings.HasPrefix(p, "#") {
				r.Summary = p
				break
			}
		}
	}

	if m := featuresRe.FindStringSubmatch(content); m != nil {
		r.KeyFeatures = listItems(m[1])
	}
	if m := sentimentRe.FindStringSubmatch(content); m != nil {
		r.Sentiment = classifySentiment(m[1])
	}
	if m := insightsRe.FindStringSubmatch(content); m != nil {
		r.ActionableInsights = listItems(m[1])
	}
	r.Citations = ExtractCitations(content)
	return r
}

func listItems(block string) []string {
	matches := bulletRe.FindAllStringSubmatch(block, -1)
	if len(matches) == 0 {
		matches = numberedRe.FindAllStringSubmatch(block, -1)
	}
	var out []string
	for _, m := range matches {
		if item := strings.TrimSpace(m[1]); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func classifySentiment(text string) Sentiment {
	text = strings.ToLower(text)
	switch {
	case containsAny(text, "positive", "good", "excellent", "strong"):
		return Sentiment{Overall: "positive", Confidence: 7}
	case containsAny(text, "negative", "poor", "weak", "bad"):
		return Sentiment{Overall: "negative", Confidence: 7}
	default:
		return Sentiment{Overall: "mixed", Confidence: 6}
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
