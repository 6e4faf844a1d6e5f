package fixer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/triagekit/triagekit/internal/types"
)

// ApplyLineEdits applies line-level edits to file content. Line numbers are
// 1-based against the input; edits are applied in descending line order so
// earlier edits never shift the positions of later ones.
func ApplyLineEdits(content string, edits []types.LineEdit) (string, error) {
	if len(edits) == 0 {
		return content, nil
	}

	// Preserve whether the input ended with a newline.
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	sorted := make([]types.LineEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Line > sorted[j].Line
	})

	for _, edit := range sorted {
		idx := edit.Line - 1
		switch edit.Action {
		case types.LineAdd:
			// Insert before the given line; line len(lines)+1 appends.
			if idx < 0 || idx > len(lines) {
				return "", fmt.Errorf("line %d out of range for add (file has %d lines)", edit.Line, len(lines))
			}
			lines = append(lines[:idx], append([]string{edit.Content}, lines[idx:]...)...)
		case types.LineRemove:
			if idx < 0 || idx >= len(lines) {
				return "", fmt.Errorf("line %d out of range for remove (file has %d lines)", edit.Line, len(lines))
			}
			lines = append(lines[:idx], lines[idx+1:]...)
		case types.LineReplace:
			if idx < 0 || idx >= len(lines) {
				return "", fmt.Errorf("line %d out of range for replace (file has %d lines)", edit.Line, len(lines))
			}
			lines[idx] = edit.Content
		default:
			return "", fmt.Errorf("unknown line action %q at line %d", edit.Action, edit.Line)
		}
	}

	result := strings.Join(lines, "\n")
	if trailingNewline {
		result += "\n"
	}
	return result, nil
}
