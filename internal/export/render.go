package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/research"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	sourcesHeading = regexp.MustCompile(`(?im)^#+\s*(sources|references)`)
	numberedRef    = regexp.MustCompile(`^\[\d+\]`)
	unsafeFileRune = regexp.MustCompile(`[<>:"/\\|?*\s]+`)
	repeatedUnder  = regexp.MustCompile(`_+`)

	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithXHTML()),
	)
)

const maxFilenameLen = 200

// SanitizeFilename makes s safe to use as a file name component.
func SanitizeFilename(s string) string {
	out := unsafeFileRune.ReplaceAllString(s, "_")
	out = repeatedUnder.ReplaceAllString(out, "_")
	out = strings.Trim(out, "_. ")
	if out == "" {
		return "untitled"
	}
	if len(out) > maxFilenameLen {
		out = strings.ToValidUTF8(out[:maxFilenameLen], "")
	}
	return out
}

// generatedAt is the job's completion time, so repeated exports are byte-identical.
func generatedAt(job *jobs.Job) time.Time {
	if job.CompletedAt != nil {
		return job.CompletedAt.UTC()
	}
	return job.UpdatedAt.UTC()
}

// RenderMarkdown produces the primary report document.
func RenderMarkdown(job *jobs.Job) string {
	r := job.Result
	if r == nil {
		return "# Analysis Error\n\nNo results available."
	}

	var b strings.Builder
	if strings.TrimSpace(r.NarrativeText) != "" {
		b.WriteString(r.NarrativeText)
		b.WriteString("\n\n")
	} else {
		writeStructured(&b, r)
	}

	if len(r.Citations) > 0 && !sourcesHeading.MatchString(r.NarrativeText) {
		b.WriteString("\n## Sources and References\n\n")
		for i, c := range r.Citations {
			if numberedRef.MatchString(c) {
				b.WriteString(c)
			} else {
				fmt.Fprintf(&b, "[%d] %s", i+1, c)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n---\n\n## Analysis Metadata\n\n")
	fmt.Fprintf(&b, "- **Target:** %s\n", job.Target)
	fmt.Fprintf(&b, "- **Mode:** %s\n", job.Mode)
	fmt.Fprintf(&b, "- **Job ID:** %s\n", job.ID)
	fmt.Fprintf(&b, "- **Generated:** %s\n", generatedAt(job).Format("January 2, 2006 at 15:04 UTC"))

	out := excessNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out) + "\n"
}

func writeStructured(b *strings.Builder, r *research.Report) {
	b.WriteString("# Market Research Analysis Report\n\n")
	if r.Summary != "" {
		fmt.Fprintf(b, "## Executive Summary\n\n%s\n\n", r.Summary)
	}
	if len(r.KeyFeatures) > 0 {
		b.WriteString("## Key Features\n\n")
		for _, f := range r.KeyFeatures {
			fmt.Fprintf(b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if r.Sentiment.Overall != "" {
		b.WriteString("## Sentiment Analysis\n\n")
		fmt.Fprintf(b, "**Overall Sentiment:** %s\n", r.Sentiment.Overall)
		fmt.Fprintf(b, "**Confidence Level:** %d/10\n\n", r.Sentiment.Confidence)
	}
	if len(r.ActionableInsights) > 0 {
		b.WriteString("## Actionable Insights\n\n")
		for i, in := range r.ActionableInsights {
			fmt.Fprintf(b, "%d. %s\n", i+1, in)
		}
		b.WriteString("\n")
	}
}

// RenderHTML converts the markdown report into a standalone HTML page.
func RenderHTML(job *jobs.Job) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(job)), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	title := html.EscapeString("Market Research: " + job.Target)
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", title)
	page.WriteString(pageStyle)
	page.WriteString("</head>\n<body>\n<main>\n")
	page.Write(body.Bytes())
	page.WriteString("</main>\n</body>\n</html>\n")
	return page.Bytes(), nil
}

const pageStyle = `<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.6; color: #24292f; }
main { max-width: 860px; margin: 2rem auto; padding: 0 1rem; }
h1 { border-bottom: 2px solid #0969da; padding-bottom: .3rem; }
h2 { border-bottom: 1px solid #d0d7de; padding-bottom: .2rem; margin-top: 2rem; }
code { background: #f6f8fa; padding: .1rem .3rem; border-radius: 4px; }
</style>
`

type citationsDoc struct {
	JobID          string              `json:"job_id"`
	Target         string              `json:"target"`
	GeneratedAt    time.Time           `json:"generated_at"`
	Citations      []research.Citation `json:"citations"`
	TotalCitations int                 `json:"total_citations"`
}

// RenderCitations returns the parsed citation list as JSON.
func RenderCitations(job *jobs.Job) ([]byte, error) {
	list := make([]research.Citation, 0, len(job.Result.Citations))
	for i, raw := range job.Result.Citations {
		list = append(list, research.ParseCitation(i+1, raw))
	}
	return json.MarshalIndent(citationsDoc{
		JobID:          job.ID,
		Target:         job.Target,
		GeneratedAt:    generatedAt(job),
		Citations:      list,
		TotalCitations: len(list),
	}, "", "  ")
}

// RenderJSON returns the completed job's client view.
func RenderJSON(job *jobs.Job) ([]byte, error) {
	return json.MarshalIndent(jobs.NewView(job), "", "  ")
}
