// Package gates implements the fix safety gate: the last line of defense
// before any automated repository mutation.
package gates

import (
	"fmt"
	"strings"

	"github.com/triagekit/triagekit/internal/types"
)

// Policy carries the thresholds and denylists the gate evaluates against.
// It is part of the immutable process configuration.
type Policy struct {
	// ConfidenceThreshold is the minimum edit-set confidence.
	ConfidenceThreshold float64

	// MaxComplexity is the maximum number of file edits.
	MaxComplexity int

	// CriticalPaths are path fragments that may only be touched by a
	// low-risk edit set (build manifests, lockfiles, CI, secrets, infra).
	CriticalPaths []string

	// DeniedContent are substrings that make proposed file content unsafe
	// regardless of risk level (destructive shell, privilege escalation,
	// permissive chmod, secret-token literals).
	DeniedContent []string
}

// Decision is the gate's verdict plus the reasons for a rejection,
// recorded in the audit log.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Evaluate decides whether an edit set may be applied automatically.
//
// It is a pure function: no side effects, no I/O, same inputs always yield
// the same decision. It fails closed: a nil or empty edit set, an unknown
// risk level, or any matched denylist rejects.
func Evaluate(editSet *types.EditSet, classification types.Classification, policy Policy) Decision {
	var reasons []string

	if editSet == nil || len(editSet.Files) == 0 {
		return Decision{Reasons: []string{"no file edits proposed"}}
	}

	if editSet.Confidence < policy.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below threshold %.2f",
			editSet.Confidence, policy.ConfidenceThreshold))
	}

	if editSet.RiskLevel == types.RiskHigh || !editSet.RiskLevel.IsValid() {
		reasons = append(reasons, fmt.Sprintf("risk level %q not acceptable for automated application", editSet.RiskLevel))
	}

	if len(editSet.Files) > policy.MaxComplexity {
		reasons = append(reasons, fmt.Sprintf("edit count %d exceeds maximum %d",
			len(editSet.Files), policy.MaxComplexity))
	}

	for _, file := range editSet.Files {
		if hit := matchCriticalPath(file.Path, policy.CriticalPaths); hit != "" && editSet.RiskLevel != types.RiskLow {
			reasons = append(reasons, fmt.Sprintf("path %q matches critical path %q with risk level %s",
				file.Path, hit, editSet.RiskLevel))
		}
		if hit := matchDeniedContent(file.Content, policy.DeniedContent); hit != "" {
			reasons = append(reasons, fmt.Sprintf("content of %q matches denied pattern %q", file.Path, hit))
		}
	}

	// Security issues never get automated fixes; a wrong fix in security
	// code is worse than no fix.
	if classification.Type == types.TypeSecurity {
		reasons = append(reasons, "security issues require human review")
	}

	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}
}

// IsSafe is the boolean form of Evaluate.
func IsSafe(editSet *types.EditSet, classification types.Classification, policy Policy) bool {
	return Evaluate(editSet, classification, policy).Allowed
}

func matchCriticalPath(path string, criticalPaths []string) string {
	lower := strings.ToLower(path)
	for _, critical := range criticalPaths {
		if strings.Contains(lower, strings.ToLower(critical)) {
			return critical
		}
	}
	return ""
}

func matchDeniedContent(content string, denied []string) string {
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	for _, pattern := range denied {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern
		}
	}
	return ""
}
