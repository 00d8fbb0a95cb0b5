package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

func writeEnvelope(w http.ResponseWriter, status, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": msg, "data": data})
}

func TestClient_SubmitAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var req SubmitRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Slack", req.Target)
			writeEnvelope(w, http.StatusCreated, 0, "created", map[string]string{"job_id": "01J", "status": "running"})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/01J":
			writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"id": "01J", "status": "running", "progress": map[string]any{"stage": "web_research"}})
		default:
			writeEnvelope(w, http.StatusNotFound, 40401, "job not found", nil)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	id, err := c.Submit(context.Background(), SubmitRequest{Target: "Slack", Credentials: "k"})
	require.NoError(t, err)
	assert.Equal(t, "01J", id)

	v, err := c.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, v.Status)
	assert.Equal(t, "web_research", v.Progress.Stage)

	_, err = c.Status(context.Background(), "other")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40401, apiErr.Code)
}

func TestClient_Export(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "markdown" {
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="analysis_Slack_01J.md"`)
			_, _ = w.Write([]byte("# Report"))
			return
		}
		writeEnvelope(w, http.StatusConflict, 40901, "job not completed yet", nil)
	}))
	defer srv.Close()

	c := New(srv.URL)
	d, err := c.Export(context.Background(), "01J", "markdown")
	require.NoError(t, err)
	assert.Equal(t, "analysis_Slack_01J.md", d.Filename)
	assert.Equal(t, "# Report", string(d.Body))

	_, err = c.Export(context.Background(), "01J", "html")
	assert.True(t, IsNotReady(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("connection refused")))
	assert.True(t, IsTransient(&APIError{StatusCode: 503}))
	assert.True(t, IsTransient(&APIError{StatusCode: 429}))
	assert.False(t, IsTransient(&APIError{StatusCode: 400}))
	assert.False(t, IsTransient(context.Canceled))
}

func TestDecodeError_PlainBody(t *testing.T) {
	err := decodeError(http.StatusBadGateway, []byte("upstream down"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.True(t, IsTransient(err))
}
