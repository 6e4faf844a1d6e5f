package types

import (
	"testing"
)

func TestIssueRefKeyRoundTrip(t *testing.T) {
	ref := IssueRef{Owner: "acme", Repo: "widgets", Number: 42}
	key := ref.Key()
	if key != "acme/widgets#42" {
		t.Errorf("Expected key 'acme/widgets#42', got %q", key)
	}

	parsed, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed != ref {
		t.Errorf("Round trip mismatch: %+v != %+v", parsed, ref)
	}
}

func TestParseKey_RepoWithSlashAndHash(t *testing.T) {
	// Repo names can't contain '/', but issue titles leak into nothing here;
	// the last '#' is the separator.
	parsed, err := ParseKey("org/some-repo#7")
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if parsed.Owner != "org" || parsed.Repo != "some-repo" || parsed.Number != 7 {
		t.Errorf("Unexpected parse result: %+v", parsed)
	}
}

func TestParseKey_Invalid(t *testing.T) {
	for _, key := range []string{"", "no-separators", "owner/repo", "#12", "owner#12/repo"} {
		if _, err := ParseKey(key); err == nil {
			t.Errorf("Expected error for key %q", key)
		}
	}
}

func TestIssueRefValidate(t *testing.T) {
	tests := []struct {
		name    string
		ref     IssueRef
		wantErr bool
	}{
		{"valid", IssueRef{Owner: "a", Repo: "b", Number: 1}, false},
		{"missing owner", IssueRef{Repo: "b", Number: 1}, true},
		{"missing repo", IssueRef{Owner: "a", Number: 1}, true},
		{"zero number", IssueRef{Owner: "a", Repo: "b"}, true},
		{"negative number", IssueRef{Owner: "a", Repo: "b", Number: -3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassificationNormalize(t *testing.T) {
	c := Classification{
		Type:       IssueType("alien"),
		Severity:   Severity("apocalyptic"),
		Priority:   Priority("yesterday"),
		Confidence: 1.7,
	}
	c.Normalize()

	if c.Type != TypeOther {
		t.Errorf("Expected type other, got %s", c.Type)
	}
	if c.Severity != SeverityMedium {
		t.Errorf("Expected severity medium, got %s", c.Severity)
	}
	if c.Priority != PriorityMedium {
		t.Errorf("Expected priority medium, got %s", c.Priority)
	}
	if c.Confidence != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %f", c.Confidence)
	}

	c.Confidence = -0.5
	c.Normalize()
	if c.Confidence != 0 {
		t.Errorf("Expected confidence clamped to 0, got %f", c.Confidence)
	}
}

func TestFallbackClassification(t *testing.T) {
	fb := FallbackClassification()
	if fb.Type != TypeOther || fb.Severity != SeverityMedium || fb.Priority != PriorityMedium {
		t.Errorf("Unexpected fallback enums: %+v", fb)
	}
	if fb.Confidence != 0.3 {
		t.Errorf("Expected fallback confidence 0.3, got %f", fb.Confidence)
	}
	if fb.AutoFixable {
		t.Error("Fallback classification must not be auto-fixable")
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityUrgent.Rank() >= PriorityHigh.Rank() {
		t.Error("urgent should rank before high")
	}
	if PriorityHigh.Rank() >= PriorityMedium.Rank() {
		t.Error("high should rank before medium")
	}
	if PriorityMedium.Rank() >= PriorityLow.Rank() {
		t.Error("medium should rank before low")
	}
	if Priority("bogus").Rank() <= PriorityLow.Rank() {
		t.Error("unknown priority should rank last")
	}
}
