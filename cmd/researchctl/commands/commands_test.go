package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/poller"
)

func TestWriteArtifact(t *testing.T) {
	dir := t.TempDir()

	path, err := writeArtifact(dir, "analysis_Slack_abcd1234.md", []byte("# Slack"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "analysis_Slack_abcd1234.md"), path)

	explicit := filepath.Join(dir, "report.md")
	path, err = writeArtifact(explicit, "ignored.md", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, explicit, path)

	b, err := os.ReadFile(explicit)
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	obs := progressPrinter(&buf)

	running := &jobs.View{Status: jobs.StatusRunning, Progress: &jobs.Progress{Stage: "researching", Step: 1, Steps: 3}}

	obs(poller.Event{State: poller.StateSubmitting})
	obs(poller.Event{State: poller.StatePolling, JobID: "j1"})
	obs(poller.Event{State: poller.StatePolling, JobID: "j1", Attempt: 1, View: running})
	obs(poller.Event{State: poller.StatePolling, JobID: "j1", Attempt: 2, View: running})
	obs(poller.Event{State: poller.StatePolling, JobID: "j1", Attempt: 3, Err: errors.New("502")})
	obs(poller.Event{State: poller.StateSucceeded, JobID: "j1", Attempt: 4})

	out := buf.String()
	assert.Contains(t, out, "submitting...")
	assert.Contains(t, out, "job j1 accepted")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[1/3] researching")))
	assert.Contains(t, out, "poll 3 failed, retrying: 502")
	assert.Contains(t, out, "succeeded")
}
