package export

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/research"
	"github.com/suPer8Hu/market-research/internal/store/memstore"
)

func completedJob() *jobs.Job {
	done := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	return &jobs.Job{
		ID:     "01JXYZABCDEFGHJKMNPQRSTVWX",
		Status: jobs.StatusCompleted,
		Target: "Slack / Teams?",
		Mode:   research.ModeQuick,
		Result: &research.Report{
			NarrativeText: "# Executive Summary\nSlack is a chat tool.\n\n## Key Features\n- Channels\n- Huddles",
			Citations: []string{
				"[1] Slack Official - https://slack.com",
				"https://www.g2.com/products/slack",
			},
		},
		CreatedAt:   done.Add(-5 * time.Minute),
		UpdatedAt:   done,
		CompletedAt: &done,
	}
}

func newAdapter(t *testing.T, js ...*jobs.Job) (*Adapter, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	for _, j := range js {
		require.NoError(t, s.Put(context.Background(), j))
	}
	return NewAdapter(s), s
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatMarkdown, "MD": FormatMarkdown, "html": FormatHTML, "citations": FormatCitations, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Slack_Teams", SanitizeFilename("Slack / Teams?"))
	assert.Equal(t, "untitled", SanitizeFilename(" ./ "))
	assert.Equal(t, "a_b", SanitizeFilename("a<>b"))
	assert.Len(t, SanitizeFilename(strings.Repeat("x", 500)), 200)
}

func TestExport_Markdown(t *testing.T) {
	job := completedJob()
	a, _ := newAdapter(t, job)

	art, err := a.Export(context.Background(), job.ID, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "analysis_Slack_Teams_01JXYZAB.md", art.Filename)
	assert.Contains(t, art.ContentType, "text/markdown")

	body := string(art.Body)
	assert.True(t, strings.HasPrefix(body, "# Executive Summary"))
	assert.Contains(t, body, "## Sources and References")
	assert.Contains(t, body, "[1] Slack Official - https://slack.com")
	assert.Contains(t, body, "[2] https://www.g2.com/products/slack")
	assert.Contains(t, body, "June 2, 2025 at 14:30 UTC")
	assert.NotContains(t, body, "\n\n\n")

	again, err := a.Export(context.Background(), job.ID, FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, art.Body, again.Body)
}

func TestRenderMarkdown_StructuredFallback(t *testing.T) {
	job := completedJob()
	job.Result = &research.Report{
		Summary:            "Short.",
		KeyFeatures:        []string{"Channels"},
		Sentiment:          research.Sentiment{Overall: "positive", Confidence: 8},
		ActionableInsights: []string{"Lower prices"},
	}
	out := RenderMarkdown(job)
	assert.Contains(t, out, "# Market Research Analysis Report")
	assert.Contains(t, out, "## Executive Summary\n\nShort.")
	assert.Contains(t, out, "- Channels")
	assert.Contains(t, out, "**Confidence Level:** 8/10")
	assert.Contains(t, out, "1. Lower prices")
	assert.NotContains(t, out, "Sources and References")
}

func TestExport_HTML(t *testing.T) {
	job := completedJob()
	job.Result.NarrativeText += "\n\n<script>alert(1)</script>"
	a, _ := newAdapter(t, job)

	art, err := a.Export(context.Background(), job.ID, FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "analysis_Slack_Teams_01JXYZAB.html", art.Filename)
	body := string(art.Body)
	assert.Contains(t, body, "<h1>Executive Summary</h1>")
	assert.Contains(t, body, "<li>Channels</li>")
	assert.Contains(t, body, "<title>Market Research: Slack / Teams?</title>")
	assert.NotContains(t, body, "<script>")
}

func TestExport_Citations(t *testing.T) {
	job := completedJob()
	a, _ := newAdapter(t, job)

	art, err := a.Export(context.Background(), job.ID, FormatCitations)
	require.NoError(t, err)
	assert.Equal(t, "citations_Slack_Teams_01JXYZAB.json", art.Filename)

	var doc struct {
		JobID          string              `json:"job_id"`
		Citations      []research.Citation `json:"citations"`
		TotalCitations int                 `json:"total_citations"`
	}
	require.NoError(t, json.Unmarshal(art.Body, &doc))
	assert.Equal(t, job.ID, doc.JobID)
	assert.Equal(t, 2, doc.TotalCitations)
	assert.Equal(t, "Slack Official", doc.Citations[0].Title)
	assert.Equal(t, "https://www.g2.com/products/slack", doc.Citations[1].URL)
	assert.Equal(t, "[2] https://www.g2.com/products/slack", doc.Citations[1].Formatted)
}

func TestExport_JSON(t *testing.T) {
	job := completedJob()
	a, _ := newAdapter(t, job)

	art, err := a.Export(context.Background(), job.ID, FormatJSON)
	require.NoError(t, err)
	var view jobs.View
	require.NoError(t, json.Unmarshal(art.Body, &view))
	assert.Equal(t, jobs.StatusCompleted, view.Status)
	require.NotNil(t, view.Result)
}

func TestExport_NotReadyAndNotFound(t *testing.T) {
	running := completedJob()
	running.ID = "running"
	running.Status = jobs.StatusRunning
	running.Result = nil
	running.CompletedAt = nil

	failedMsg := "boom"
	failed := completedJob()
	failed.ID = "failed"
	failed.Status = jobs.StatusFailed
	failed.Result = nil
	failed.Error = &failedMsg

	a, store := newAdapter(t, running, failed, completedJob())

	for _, id := range []string{"running", "failed"} {
		_, err := a.Export(context.Background(), id, FormatMarkdown)
		assert.ErrorIs(t, err, jobs.ErrNotReady, id)
	}

	_, err := a.Export(context.Background(), "missing", FormatMarkdown)
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	// export never mutates the record
	before, err := store.Get(context.Background(), "running")
	require.NoError(t, err)
	_, _ = a.Export(context.Background(), "running", FormatHTML)
	after, err := store.Get(context.Background(), "running")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// deleted job is NotFound, not NotReady
	_, err = store.Delete(context.Background(), completedJob().ID)
	require.NoError(t, err)
	_, err = a.Export(context.Background(), completedJob().ID, FormatMarkdown)
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	_, err = NewAdapter(store).Export(context.Background(), "failed", Format("pdf"))
	assert.ErrorIs(t, err, jobs.ErrNotReady)
}
