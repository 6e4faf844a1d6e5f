package commands

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantAction Action
		wantFound  bool
		wantArgs   []string
	}{
		{"simple fix", "@triagekit fix", ActionFix, true, nil},
		{"analyze", "@triagekit analyze", ActionAnalyze, true, nil},
		{"priority alias", "@triagekit priority", ActionAnalyze, true, nil},
		{"suggest", "@triagekit suggest", ActionSuggest, true, nil},
		{"case insensitive mention", "@TriageKit FIX", ActionFix, true, nil},
		{"mention mid-sentence", "thanks! @triagekit fix please", ActionFix, true, []string{"please"}},
		{"mention on later line", "context first\n\n@triagekit analyze", ActionAnalyze, true, nil},
		{"bare mention", "@triagekit", ActionHelp, true, nil},
		{"unknown action", "@triagekit deploy prod", ActionHelp, true, []string{"prod"}},
		{"help", "@triagekit help", ActionHelp, true, nil},
		{"no mention", "this just describes the bug", "", false, nil},
		{"different bot", "@otherbot fix", "", false, nil},
		{"mention embedded in word", "email me at x@triagekit.dev fix", "", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, found := Parse(tt.body, "triagekit")
			if found != tt.wantFound {
				t.Fatalf("Parse() found = %v, want %v", found, tt.wantFound)
			}
			if !found {
				return
			}
			if cmd.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", cmd.Action, tt.wantAction)
			}
			if len(cmd.Args) != len(tt.wantArgs) {
				t.Errorf("Args = %v, want %v", cmd.Args, tt.wantArgs)
			}
		})
	}
}

func TestParse_UnknownActionKeepsRaw(t *testing.T) {
	cmd, found := Parse("@triagekit deploy", "triagekit")
	if !found {
		t.Fatal("expected command")
	}
	if cmd.Action != ActionHelp || cmd.Raw != "deploy" {
		t.Errorf("got action %q raw %q, want help/deploy", cmd.Action, cmd.Raw)
	}
}

func TestHelpText(t *testing.T) {
	text := HelpText("triagekit")
	for _, want := range []string{"@triagekit analyze", "@triagekit fix", "@triagekit suggest", "@triagekit help"} {
		if !strings.Contains(text, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}
