// Package ai wraps the Anthropic completion API for issue analysis and
// remediation planning.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns. Model output is parsed on every inbound event, so
// compiling per call would be wasteful.
var (
	fenceRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxResponseSize bounds how much model output we are willing to parse.
const maxResponseSize = 10 * 1024 * 1024

// Parse decodes a model response as JSON into T, tolerating the usual LLM
// formatting quirks. Strategies, in order:
//
//  1. direct decode
//  2. strip markdown code fences, decode again
//  3. remove trailing commas and comments, decode again
//  4. extract the first JSON object/array from surrounding prose, decode
//
// Callers decide whether a parse failure is fatal; the analyzer and
// solution generator absorb it into deterministic fallbacks.
func Parse[T any](text string) (T, error) {
	var zero T

	if len(text) > maxResponseSize {
		return zero, fmt.Errorf("response exceeds size limit (%d > %d bytes)", len(text), maxResponseSize)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("empty response")
	}

	if v, err := decode[T](trimmed); err == nil {
		return v, nil
	}

	unfenced := stripFences(trimmed)
	if unfenced != trimmed {
		if v, err := decode[T](unfenced); err == nil {
			return v, nil
		}
	}

	repaired := repairJSON(unfenced)
	if v, err := decode[T](repaired); err == nil {
		return v, nil
	}

	if extracted := extractJSON(repaired); extracted != "" {
		if v, err := decode[T](extracted); err == nil {
			return v, nil
		}
	}

	return zero, fmt.Errorf("response is not valid JSON after all repair strategies (%d bytes)", len(text))
}

func decode[T any](text string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(text), &v)
	return v, err
}

// stripFences removes ```json ... ``` style fences, and a single pair of
// wrapping backticks if present.
func stripFences(text string) string {
	cleaned := fenceRegex.ReplaceAllString(text, "$1")
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") && len(cleaned) > 1 {
		cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
	}
	return cleaned
}

// repairJSON fixes trailing commas and strips // and /* */ comments.
// Single quotes are left alone; rewriting them breaks valid JSON that
// contains apostrophes.
func repairJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = blockCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the outermost JSON object or array out of mixed prose.
// The first JSON-like character decides which shape to look for, so an
// array of objects is not mistaken for its first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return arrayRegex.FindString(text)
	}
	if m := objectRegex.FindString(text); m != "" {
		return m
	}
	return arrayRegex.FindString(text)
}

// truncate shortens a string for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
