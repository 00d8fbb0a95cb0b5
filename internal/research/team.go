package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/market-research/internal/ai"
)

// Team runs the agents sequentially against one provider. Each agent sees the
// brief and the output of every agent before it.
type Team struct {
	registry *ai.Registry
	provider string
	models   map[Mode]string
	agents   []Agent
}

func NewTeam(registry *ai.Registry, provider string, models map[Mode]string) *Team {
	return &Team{
		registry: registry,
		provider: provider,
		models:   models,
		agents:   DefaultAgents(),
	}
}

// WithAgents replaces the agent pipeline.
func (t *Team) WithAgents(agents []Agent) *Team {
	t.agents = agents
	return t
}

func (t *Team) Research(ctx context.Context, req Request, progress ProgressFunc) (*Report, error) {
	if len(t.agents) == 0 {
		return nil, fmt.Errorf("research: no agents configured")
	}
	if progress == nil {
		progress = func(string, int, int) {}
	}

	p, err := t.registry.Get(ctx, t.provider, t.models[req.Mode], req.Credentials)
	if err != nil {
		return nil, err
	}

	brief := Brief(req.Target, req.Mode)
	findings := make([]Section, 0, len(t.agents))
	for i, agent := range t.agents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(agent.Stage, i+1, len(t.agents))

		out, err := p.Chat(ctx, []ai.Message{
			{Role: "system", Content: agent.Instructions},
			{Role: "user", Content: agentPrompt(brief, findings)},
		})
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", agent.Name, err)
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return nil, fmt.Errorf("%s agent: empty answer: %w", agent.Name, ErrMalformed)
		}
		findings = append(findings, Section{Title: agent.Name, Body: out})
	}

	final := CleanContent(findings[len(findings)-1].Body)
	if final == "" {
		return nil, fmt.Errorf("final report: %w", ErrMalformed)
	}
	report := ParseReport(final)
	report.Sections = findings
	return report, nil
}
