package types

import (
	"fmt"
	"strings"
	"time"
)

// IssueRef identifies an issue on the hosting platform.
type IssueRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

// Key returns the canonical identity string, e.g. "acme/widgets#42".
// One IssueRecord exists per key; all store writes are upserts on it.
func (r IssueRef) Key() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// RepoFullName returns "owner/repo".
func (r IssueRef) RepoFullName() string {
	return r.Owner + "/" + r.Repo
}

// Validate checks the reference has all identity components.
func (r IssueRef) Validate() error {
	if r.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if r.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if r.Number <= 0 {
		return fmt.Errorf("issue number must be positive (got %d)", r.Number)
	}
	return nil
}

// ParseKey parses an identity string produced by IssueRef.Key.
func ParseKey(key string) (IssueRef, error) {
	slash := strings.Index(key, "/")
	hash := strings.LastIndex(key, "#")
	if slash <= 0 || hash <= slash {
		return IssueRef{}, fmt.Errorf("invalid issue key: %s", key)
	}
	var number int
	if _, err := fmt.Sscanf(key[hash+1:], "%d", &number); err != nil {
		return IssueRef{}, fmt.Errorf("invalid issue number in key %s: %w", key, err)
	}
	return IssueRef{
		Owner:  key[:slash],
		Repo:   key[slash+1 : hash],
		Number: number,
	}, nil
}

// Issue carries the issue content the pipeline operates on.
type Issue struct {
	Ref    IssueRef `json:"ref"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
	State  string   `json:"state"` // "open" or "closed" as reported by the host
	Author string   `json:"author,omitempty"`
}

// RepoMetadata is the repository context fed into analysis prompts.
type RepoMetadata struct {
	FullName      string `json:"full_name"`
	Language      string `json:"language,omitempty"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch"`
}

// IssueRecord is the persisted state of one issue in the pipeline.
// Records are created on first successful classification and retained
// for audit; status transitions are owned by the orchestrator.
type IssueRecord struct {
	Ref               IssueRef         `json:"ref"`
	Title             string           `json:"title"`
	Body              string           `json:"body"`
	Classification    Classification   `json:"classification"`
	Plan              *RemediationPlan `json:"plan,omitempty"`
	Status            ProcessingStatus `json:"status"`
	AutoFixAttempted  bool             `json:"auto_fix_attempted"`
	AutoFixSuccessful *bool            `json:"auto_fix_successful,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
}

// Validate checks the record has valid field values.
func (rec *IssueRecord) Validate() error {
	if err := rec.Ref.Validate(); err != nil {
		return err
	}
	if rec.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", rec.Status)
	}
	return nil
}

// IssueType categorizes the kind of issue reported.
type IssueType string

const (
	TypeBug           IssueType = "bug"
	TypeFeature       IssueType = "feature"
	TypeDocumentation IssueType = "documentation"
	TypeSecurity      IssueType = "security"
	TypePerformance   IssueType = "performance"
	TypeConfiguration IssueType = "configuration"
	TypeDependency    IssueType = "dependency"
	TypeTest          IssueType = "test"
	TypeRefactor      IssueType = "refactor"
	TypeOther         IssueType = "other"
)

// IsValid checks if the issue type value is valid.
func (t IssueType) IsValid() bool {
	switch t {
	case TypeBug, TypeFeature, TypeDocumentation, TypeSecurity, TypePerformance,
		TypeConfiguration, TypeDependency, TypeTest, TypeRefactor, TypeOther:
		return true
	}
	return false
}

// Severity grades how bad an issue is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Priority grades how urgently an issue should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid checks if the priority value is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities for pending-work queries (urgent first).
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Classification is the structured output of issue analysis.
type Classification struct {
	Type            IssueType `json:"type"`
	Severity        Severity  `json:"severity"`
	Priority        Priority  `json:"priority"`
	Confidence      float64   `json:"confidence"`
	Description     string    `json:"description"`
	SuggestedLabels []string  `json:"suggested_labels,omitempty"`
	AutoFixable     bool      `json:"auto_fixable"`
	RelatedFiles    []string  `json:"related_files,omitempty"`
	Dependencies    []string  `json:"dependencies,omitempty"`
}

// Normalize clamps confidence into [0,1] and replaces invalid enum values
// with the field defaults, so a half-valid model response still yields a
// usable classification.
func (c *Classification) Normalize() {
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	if !c.Type.IsValid() {
		c.Type = TypeOther
	}
	if !c.Severity.IsValid() {
		c.Severity = SeverityMedium
	}
	if !c.Priority.IsValid() {
		c.Priority = PriorityMedium
	}
}

// FallbackClassification is the deterministic classification used when the
// model response is structurally unusable. A failed classification must
// never block issue intake.
func FallbackClassification() Classification {
	return Classification{
		Type:        TypeOther,
		Severity:    SeverityMedium,
		Priority:    PriorityMedium,
		Confidence:  0.3,
		Description: "Automatic classification failed; defaulting to manual triage.",
		AutoFixable: false,
	}
}

// Difficulty grades a remediation plan.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid checks if the difficulty value is valid.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// RemediationStep is one human-readable step of a plan.
type RemediationStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code,omitempty"`
	Commands    []string `json:"commands,omitempty"`
	FileRefs    []string `json:"file_refs,omitempty"`
}

// RemediationPlan is the structured output of solution generation.
type RemediationPlan struct {
	Summary       string            `json:"summary"`
	Steps         []RemediationStep `json:"steps"`
	EditSet       *EditSet          `json:"edit_set,omitempty"`
	Resources     []string          `json:"resources,omitempty"`
	EstimatedTime string            `json:"estimated_time,omitempty"`
	Difficulty    Difficulty        `json:"difficulty"`
}

// EditSetType tags what kind of change an edit set makes.
type EditSetType string

const (
	EditCodeChange       EditSetType = "code_change"
	EditConfigChange     EditSetType = "config_change"
	EditDependencyUpdate EditSetType = "dependency_update"
	EditDocumentation    EditSetType = "documentation"
)

// RiskLevel grades how dangerous applying an edit set is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid checks if the risk level value is valid.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// FileAction says what to do with a file.
type FileAction string

const (
	FileCreate FileAction = "create"
	FileUpdate FileAction = "update"
	FileDelete FileAction = "delete"
)

// LineAction says what to do at a specific line.
type LineAction string

const (
	LineAdd     LineAction = "add"
	LineRemove  LineAction = "remove"
	LineReplace LineAction = "replace"
)

// LineEdit is a single line-level change within a file.
// Line numbers are 1-based and refer to the file as fetched.
type LineEdit struct {
	Line    int        `json:"line"`
	Action  LineAction `json:"action"`
	Content string     `json:"content,omitempty"`
}

// FileEdit is one file's worth of a proposed change.
type FileEdit struct {
	Path      string     `json:"path"`
	Action    FileAction `json:"action"`
	Content   string     `json:"content,omitempty"`
	LineEdits []LineEdit `json:"line_edits,omitempty"`
}

// EditSet is a machine-applicable bundle of file changes proposed as an
// automated fix. An EditSet with zero file edits is never applicable.
type EditSet struct {
	Type          EditSetType `json:"type"`
	Description   string      `json:"description"`
	Files         []FileEdit  `json:"files"`
	Commands      []string    `json:"commands,omitempty"`
	Confidence    float64     `json:"confidence"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	TestsRequired bool        `json:"tests_required"`
}

// ActionLogEntry is one append-only audit record for an issue.
// Entries are written by the orchestrator and fix applicator only and are
// never mutated after append.
type ActionLogEntry struct {
	ID        int64     `json:"id"`
	IssueKey  string    `json:"issue_key"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"` // opaque JSON payload
	CreatedAt time.Time `json:"created_at"`
}
