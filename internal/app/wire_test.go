package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/market-research/internal/ai"
	"github.com/suPer8Hu/market-research/internal/config"
	"github.com/suPer8Hu/market-research/internal/store/gormstore"
	"github.com/suPer8Hu/market-research/internal/store/memstore"
)

func TestNewRegistry_Providers(t *testing.T) {
	reg := NewRegistry(config.Config{OllamaModel: "llama3:latest", OpenRouterBaseURL: "http://localhost"})
	assert.Equal(t, []string{"ollama", "openai", "openrouter"}, reg.Names())

	_, err := reg.Get(context.Background(), "openrouter", "m", "")
	assert.ErrorIs(t, err, ai.ErrCredentialsRequired)

	p, err := reg.Get(context.Background(), "ollama", "", "")
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = reg.Get(context.Background(), "openai", "gpt-4o-mini", "")
	assert.ErrorIs(t, err, ai.ErrCredentialsRequired)
}

func TestOpenStore(t *testing.T) {
	s, closeFn, err := OpenStore(context.Background(), config.Config{JobStore: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)
	assert.NoError(t, closeFn())

	dsn := "file:" + filepath.Join(t.TempDir(), "jobs.db")
	s, closeFn, err = OpenStore(context.Background(), config.Config{JobStore: "sql", DBDriver: "sqlite", DBDSN: dsn})
	require.NoError(t, err)
	assert.IsType(t, &gormstore.Store{}, s)
	assert.NoError(t, closeFn())

	_, _, err = OpenStore(context.Background(), config.Config{JobStore: "etcd"})
	assert.Error(t, err)
}
