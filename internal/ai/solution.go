package ai

import (
	"context"
	"fmt"

	"github.com/triagekit/triagekit/internal/types"
)

// GenerateSolution produces a remediation plan for a classified issue.
// Same tolerant-parsing discipline as Analyze: malformed model output
// yields a degraded plan (explanatory summary, no steps, difficulty hard)
// rather than an error. Only transport failures propagate.
func (c *Client) GenerateSolution(ctx context.Context, issue types.Issue, classification types.Classification, codebaseContext string) (*types.RemediationPlan, error) {
	prompt := buildSolutionPrompt(issue, classification, codebaseContext)

	response, err := c.Complete(ctx, "solution", prompt)
	if err != nil {
		return nil, err
	}

	plan, err := Parse[types.RemediationPlan](response)
	if err != nil {
		c.logger.Warn("solution response unparseable, using degraded plan",
			"issue", issue.Ref.Key(),
			"error", err,
			"responsePreview", truncate(response, 200))
		return degradedPlan(), nil
	}

	if !plan.Difficulty.IsValid() {
		plan.Difficulty = types.DifficultyMedium
	}
	if plan.EditSet != nil {
		normalizeEditSet(plan.EditSet)
	}
	return &plan, nil
}

func degradedPlan() *types.RemediationPlan {
	return &types.RemediationPlan{
		Summary:    "Automatic solution generation failed; the model response could not be parsed. Manual investigation required.",
		Steps:      []types.RemediationStep{},
		Difficulty: types.DifficultyHard,
	}
}

func normalizeEditSet(es *types.EditSet) {
	if es.Confidence < 0 {
		es.Confidence = 0
	}
	if es.Confidence > 1 {
		es.Confidence = 1
	}
	if !es.RiskLevel.IsValid() {
		// Unknown risk is treated as the worst case; the safety gate
		// fails closed on it.
		es.RiskLevel = types.RiskHigh
	}
}

func buildSolutionPrompt(issue types.Issue, classification types.Classification, codebaseContext string) string {
	contextSection := ""
	if codebaseContext != "" {
		contextSection = fmt.Sprintf("\nCodebase context:\n%s\n", truncate(codebaseContext, 6000))
	}

	return fmt.Sprintf(`You are proposing a remediation plan for an issue classified as %s (severity %s, priority %s).

Issue #%d: %s

Issue body:
%s

Classification summary: %s
%s
Respond with a JSON object:
{
  "summary": "What needs to happen",
  "steps": [
    {
      "title": "Step title",
      "description": "What to do and why",
      "code": "optional code excerpt",
      "commands": ["optional shell commands"],
      "file_refs": ["files this step touches"]
    }
  ],
  "edit_set": {
    "type": "code_change|config_change|dependency_update|documentation",
    "description": "What the automated change does",
    "files": [
      {
        "path": "relative/path",
        "action": "create|update|delete",
        "content": "full file content for create or wholesale update",
        "line_edits": [{"line": 10, "action": "add|remove|replace", "content": "new line content"}]
      }
    ],
    "commands": ["optional follow-up commands"],
    "confidence": 0.9,
    "risk_level": "low|medium|high",
    "tests_required": true
  },
  "resources": ["optional links or references"],
  "estimated_time": "e.g. 30 minutes",
  "difficulty": "easy|medium|hard"
}

RULES:
1. Include edit_set ONLY when you can produce a complete, safe, mechanical change. Omit it otherwise.
2. Never include an edit_set that touches build manifests, lockfiles, CI workflows, container files, or anything secret-related unless the change is trivially low risk.
3. risk_level reflects blast radius if the change is wrong.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences. Just the JSON object.`,
		classification.Type, classification.Severity, classification.Priority,
		issue.Ref.Number, issue.Title,
		truncate(issue.Body, 8000),
		classification.Description,
		contextSection)
}
