// Package events defines the inbound event contracts the orchestrator
// consumes. Payloads are validated at ingress; the pipeline never sees a
// structurally invalid event.
package events

import (
	"fmt"
	"time"

	"github.com/triagekit/triagekit/internal/types"
)

// Kind discriminates inbound events.
type Kind string

const (
	KindIssueOpened    Kind = "issue_opened"
	KindIssueEdited    Kind = "issue_edited"
	KindCommentCreated Kind = "comment_created"
	KindPROpened       Kind = "pr_opened"
	KindPRClosed       Kind = "pr_closed"
)

// IsValid checks if the event kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindIssueOpened, KindIssueEdited, KindCommentCreated, KindPROpened, KindPRClosed:
		return true
	}
	return false
}

// Event is one inbound occurrence from the hosting platform. Exactly one of
// the payload pointers matching Kind is set.
type Event struct {
	// DeliveryID uniquely identifies this delivery for idempotent handling.
	DeliveryID string

	Kind       Kind
	ReceivedAt time.Time

	Issue   *IssuePayload
	Comment *CommentPayload
	PR      *PRPayload
}

// IssuePayload carries issue_opened and issue_edited data.
type IssuePayload struct {
	Issue types.Issue

	// ChangedFields lists what an edit touched ("title", "body").
	// Empty for issue_opened.
	ChangedFields []string
}

// CommentPayload carries comment_created data.
type CommentPayload struct {
	IssueRef types.IssueRef
	Author   string
	Body     string
}

// PRPayload carries pr_opened and pr_closed data.
type PRPayload struct {
	Ref    types.IssueRef // the pull request's own number
	Branch string         // head branch name
	Merged bool           // pr_closed only
}

// Validate checks the event is structurally complete for its kind.
func (e *Event) Validate() error {
	if e.DeliveryID == "" {
		return fmt.Errorf("delivery id is required")
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	switch e.Kind {
	case KindIssueOpened, KindIssueEdited:
		if e.Issue == nil {
			return fmt.Errorf("%s event requires an issue payload", e.Kind)
		}
		if err := e.Issue.Issue.Ref.Validate(); err != nil {
			return fmt.Errorf("%s event: %w", e.Kind, err)
		}
		if e.Issue.Issue.Title == "" {
			return fmt.Errorf("%s event requires an issue title", e.Kind)
		}
	case KindCommentCreated:
		if e.Comment == nil {
			return fmt.Errorf("comment event requires a comment payload")
		}
		if err := e.Comment.IssueRef.Validate(); err != nil {
			return fmt.Errorf("comment event: %w", err)
		}
		if e.Comment.Author == "" {
			return fmt.Errorf("comment event requires an author")
		}
	case KindPROpened, KindPRClosed:
		if e.PR == nil {
			return fmt.Errorf("%s event requires a pull request payload", e.Kind)
		}
		if err := e.PR.Ref.Validate(); err != nil {
			return fmt.Errorf("%s event: %w", e.Kind, err)
		}
	}
	return nil
}
