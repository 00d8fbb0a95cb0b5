package handlers

import (
	"log/slog"

	"github.com/suPer8Hu/market-research/internal/export"
	"github.com/suPer8Hu/market-research/internal/jobs"
)

type Handler struct {
	Runner  *jobs.Runner
	Jobs    *jobs.Service
	Export  *export.Adapter
	Version string
	Log     *slog.Logger
}

func NewHandler(runner *jobs.Runner, svc *jobs.Service, exp *export.Adapter, version string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Runner: runner, Jobs: svc, Export: exp, Version: version, Log: log}
}
