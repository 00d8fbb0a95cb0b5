// Package export serves a completed job's report in alternate representations.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

type Format string

const (
	FormatMarkdown  Format = "markdown"
	FormatHTML      Format = "html"
	FormatCitations Format = "citations"
	FormatJSON      Format = "json"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists the accepted formats in display order.
func Formats() []Format {
	return []Format{FormatMarkdown, FormatHTML, FormatCitations, FormatJSON}
}

// ParseFormat accepts a format name or a common alias. Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "citations":
		return FormatCitations, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

type Artifact struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Source is the read side the adapter needs; jobs.Store and jobs.Service both satisfy it.
type Source interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

type Adapter struct {
	src Source
}

func NewAdapter(src Source) *Adapter {
	return &Adapter{src: src}
}

// Export renders job id in format. It returns jobs.ErrNotFound for unknown
// or evicted jobs and jobs.ErrNotReady until the job has completed. The job
// record is only read.
func (a *Adapter) Export(ctx context.Context, id string, format Format) (*Artifact, error) {
	job, err := a.src.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusCompleted || job.Result == nil {
		return nil, jobs.ErrNotReady
	}

	base := fmt.Sprintf("analysis_%s_%s", SanitizeFilename(job.Target), shortID(job.ID))
	switch format {
	case FormatMarkdown:
		return &Artifact{
			ContentType: "text/markdown; charset=utf-8",
			Filename:    base + ".md",
			Body:        []byte(RenderMarkdown(job)),
		}, nil
	case FormatHTML:
		body, err := RenderHTML(job)
		if err != nil {
			return nil, err
		}
		return &Artifact{ContentType: "text/html; charset=utf-8", Filename: base + ".html", Body: body}, nil
	case FormatCitations:
		body, err := RenderCitations(job)
		if err != nil {
			return nil, err
		}
		return &Artifact{
			ContentType: "application/json",
			Filename:    fmt.Sprintf("citations_%s_%s.json", SanitizeFilename(job.Target), shortID(job.ID)),
			Body:        body,
		}, nil
	case FormatJSON:
		body, err := RenderJSON(job)
		if err != nil {
			return nil, err
		}
		return &Artifact{ContentType: "application/json", Filename: base + ".json", Body: body}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
