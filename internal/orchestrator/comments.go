package orchestrator

import (
	"fmt"
	"strings"

	"github.com/triagekit/triagekit/internal/ai"
	"github.com/triagekit/triagekit/internal/gates"
	"github.com/triagekit/triagekit/internal/types"
)

func rateLimitedComment(botName string) string {
	return fmt.Sprintf(
		"This repository is being processed faster than its rate limit allows, so this event was skipped. "+
			"Things will catch up shortly; you can also run `@%s analyze` later to process this issue explicitly.",
		botName)
}

func analysisComment(analysis ai.AnalysisResult) string {
	c := analysis.Classification
	var b strings.Builder

	b.WriteString("## Issue Analysis\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Type | %s |\n", c.Type)
	fmt.Fprintf(&b, "| Severity | %s |\n", c.Severity)
	fmt.Fprintf(&b, "| Priority | %s |\n", c.Priority)
	fmt.Fprintf(&b, "| Confidence | %.0f%% |\n", c.Confidence*100)
	fmt.Fprintf(&b, "| Auto-fixable | %v |\n", c.AutoFixable)

	if c.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", c.Description)
	}
	if len(c.RelatedFiles) > 0 {
		b.WriteString("\nLikely related files:\n")
		for _, path := range c.RelatedFiles {
			fmt.Fprintf(&b, "- `%s`\n", path)
		}
	}
	if analysis.Degraded {
		b.WriteString("\n> Automatic classification did not produce a usable result; these are fallback values and a human should triage this issue.\n")
	}
	return b.String()
}

func planComment(plan *types.RemediationPlan) string {
	var b strings.Builder

	b.WriteString("## Suggested Remediation\n\n")
	if plan.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", plan.Summary)
	}
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. **%s**", i+1, step.Title)
		if step.Description != "" {
			fmt.Fprintf(&b, " - %s", step.Description)
		}
		b.WriteString("\n")
		if step.Code != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", step.Code)
		}
	}
	if plan.EstimatedTime != "" || plan.Difficulty != "" {
		b.WriteString("\n")
		if plan.Difficulty != "" {
			fmt.Fprintf(&b, "Difficulty: %s. ", plan.Difficulty)
		}
		if plan.EstimatedTime != "" {
			fmt.Fprintf(&b, "Estimated time: %s.", plan.EstimatedTime)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func gateRejectionComment(decision gates.Decision) string {
	var b strings.Builder
	b.WriteString("An automated fix was generated but did not pass the safety checks, so it was not applied:\n\n")
	for _, reason := range decision.Reasons {
		fmt.Fprintf(&b, "- %s\n", reason)
	}
	b.WriteString("\nThis issue needs manual attention.")
	return b.String()
}
