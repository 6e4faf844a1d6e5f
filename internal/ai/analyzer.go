package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/triagekit/triagekit/internal/types"
)

// AnalysisResult tags a classification with whether it came from the model
// or from the deterministic fallback. Callers and tests can distinguish a
// genuine high-confidence analysis from a degraded one.
type AnalysisResult struct {
	Classification types.Classification
	Degraded       bool
}

// Analyze classifies an issue. The only error it returns is a
// transport-level completion failure; malformed or partial model output is
// absorbed into a normalized or fallback classification, because a failed
// classification must never block issue intake.
func (c *Client) Analyze(ctx context.Context, issue types.Issue, meta types.RepoMetadata) (AnalysisResult, error) {
	prompt := buildAnalysisPrompt(issue, meta)

	response, err := c.Complete(ctx, "analysis", prompt)
	if err != nil {
		return AnalysisResult{}, err
	}

	classification, err := Parse[types.Classification](response)
	if err != nil {
		c.logger.Warn("analysis response unparseable, using fallback classification",
			"issue", issue.Ref.Key(),
			"error", err,
			"responsePreview", truncate(response, 200))
		return AnalysisResult{Classification: types.FallbackClassification(), Degraded: true}, nil
	}

	classification.Normalize()
	if classification.Description == "" {
		classification.Description = "No description returned by the analysis model."
	}

	return AnalysisResult{Classification: classification}, nil
}

func buildAnalysisPrompt(issue types.Issue, meta types.RepoMetadata) string {
	labels := "none"
	if len(issue.Labels) > 0 {
		labels = strings.Join(issue.Labels, ", ")
	}
	language := meta.Language
	if language == "" {
		language = "unknown"
	}

	return fmt.Sprintf(`You are a triage assistant classifying an issue filed against the repository %s (primary language: %s).

Issue #%d: %s

Existing labels: %s

Issue body:
%s

Classify this issue. Respond with a JSON object:
{
  "type": "bug|feature|documentation|security|performance|configuration|dependency|test|refactor|other",
  "severity": "low|medium|high|critical",
  "priority": "low|medium|high|urgent",
  "confidence": 0.9,
  "description": "One-paragraph summary of the problem",
  "suggested_labels": ["label"],
  "auto_fixable": false,
  "related_files": ["path/relative/to/repo/root"],
  "dependencies": ["package names, if a dependency issue"]
}

RULES:
1. confidence is your confidence in the classification, between 0 and 1.
2. Set auto_fixable true ONLY for small, mechanical, low-risk changes (typos, obvious one-line bugs, documentation fixes).
3. Security issues are never auto_fixable.
4. related_files only when the issue clearly names or implies specific files.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap it in markdown code fences. Just the JSON object.`,
		meta.FullName, language,
		issue.Ref.Number, issue.Title,
		labels,
		truncate(issue.Body, 8000))
}
