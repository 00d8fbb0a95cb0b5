package research

import (
	"fmt"
	"strings"
)

// Agent is one specialist in the research team: a fixed system prompt that
// runs against the shared brief plus everything earlier agents produced.
type Agent struct {
	Name         string
	Stage        string
	Instructions string
}

const citationRule = "Always cite sources with full URLs, one per line, formatted as [n] Source Title - https://example.com/page."

// DefaultAgents is the five-stage pipeline: research, sentiment, features,
// competitive intelligence, and the final report writer.
func DefaultAgents() []Agent {
	return []Agent{
		{
			Name:  "Web Research",
			Stage: "web_research",
			Instructions: `You are a web research specialist.
Gather company details, product features, pricing and market position for the product under study.
Prefer official product pages and documentation. Structure findings under the headings
Company Info, Product Features, Pricing and Market Position. Stick to verifiable facts.
` + citationRule,
		},
		{
			Name:  "Sentiment Analysis",
			Stage: "sentiment_analysis",
			Instructions: `You are a customer sentiment analyst.
Using the research so far, summarise what customers say on review platforms such as G2, Capterra and Reddit.
Classify the overall sentiment as positive, negative or mixed, give a confidence from 1 to 10,
and list the recurring positive and negative themes with evidence.
` + citationRule,
		},
		{
			Name:  "Feature Extraction",
			Stage: "feature_extraction",
			Instructions: `You are a product feature analyst.
Extract the concrete product features from the research and group them into
Core Features, Advanced Features, Integrations and Unique Capabilities as bullet lists.
Note any feature information that is missing or unclear.
` + citationRule,
		},
		{
			Name:  "Competitive Intelligence",
			Stage: "competitive_intelligence",
			Instructions: `You are a competitive intelligence analyst.
Compare the product against its main competitors. Identify strengths, weaknesses, differentiators,
pricing strategy, market gaps and threats.
` + citationRule,
		},
		{
			Name:  "Report Generator",
			Stage: "report_generation",
			Instructions: `You are an executive report writer. Synthesise all prior analysis into one markdown report with these sections:
# Executive Summary
## Key Features (bullet list)
## Customer Sentiment
## Competitive Position
## Actionable Insights (numbered list, each with a High/Medium/Low priority)
## Sources and References (one [n] Title - URL line per source)
Write for business decision makers.`,
		},
	}
}

// Brief is the task statement every agent receives.
func Brief(target string, mode Mode) string {
	if mode == ModeDetailed {
		return fmt.Sprintf(`Perform a comprehensive market research analysis of %q.
Cover the company in detail, a full feature breakdown, customer sentiment, competitive positioning,
market opportunities and strategic recommendations.`, target)
	}
	return fmt.Sprintf(`Perform a quick market research analysis of %q.
Focus on a company overview, key features, basic sentiment and two or three strategic insights.
Keep it concise but actionable.`, target)
}

func agentPrompt(brief string, findings []Section) string {
	if len(findings) == 0 {
		return brief
	}
	var b strings.Builder
	b.WriteString(brief)
	b.WriteString("\n\nFindings from the team so far:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "\n### %s\n%s\n", f.Title, f.Body)
	}
	return b.String()
}
