// Package research runs market research against a chat model provider and
// turns the free-text answer into a structured Report.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Mode string

const (
	ModeQuick    Mode = "quick"
	ModeDetailed Mode = "detailed"
)

// ParseMode accepts "quick" and "detailed" (case-insensitive). Empty means quick.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeQuick:
		return ModeQuick, nil
	case ModeDetailed:
		return ModeDetailed, nil
	default:
		return "", fmt.Errorf("mode must be %q or %q", ModeQuick, ModeDetailed)
	}
}

// ErrMalformed marks an upstream answer that cannot be used as a report.
var ErrMalformed = errors.New("malformed research output")

type Request struct {
	Target      string
	Mode        Mode
	Credentials string
}

// ProgressFunc is told which stage is starting. step counts from 1.
type ProgressFunc func(stage string, step, steps int)

// Researcher performs one research request. Implementations may take minutes
// and must honour ctx cancellation.
type Researcher interface {
	Research(ctx context.Context, req Request, progress ProgressFunc) (*Report, error)
}

type Sentiment struct {
	Overall    string `json:"overall"`
	Confidence int    `json:"confidence"`
}

type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Report struct {
	NarrativeText      string    `json:"narrative_text"`
	Summary            string    `json:"summary,omitempty"`
	KeyFeatures        []string  `json:"key_features,omitempty"`
	Sentiment          Sentiment `json:"sentiment"`
	ActionableInsights []string  `json:"actionable_insights,omitempty"`
	Sections           []Section `json:"sections,omitempty"`
	Citations          []string  `json:"citations,omitempty"`
}

// Clone returns a deep copy.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.KeyFeatures = append([]string(nil), r.KeyFeatures...)
	out.ActionableInsights = append([]string(nil), r.ActionableInsights...)
	out.Sections = append([]Section(nil), r.Sections...)
	out.Citations = append([]string(nil), r.Citations...)
	return &out
}
