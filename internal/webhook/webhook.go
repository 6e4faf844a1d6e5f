// Package webhook is the HTTP ingress. It validates GitHub webhook
// deliveries, translates them into pipeline events, and hands them to the
// orchestrator.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v50/github"
	"github.com/google/uuid"

	"github.com/triagekit/triagekit/internal/events"
	"github.com/triagekit/triagekit/internal/types"
)

// EventSink consumes translated events.
type EventSink interface {
	HandleEvent(ctx context.Context, event *events.Event) error
}

// Handler serves POST /webhook.
type Handler struct {
	secret []byte
	sink   EventSink
	logger *slog.Logger
}

// NewHandler creates a webhook handler. An empty secret disables signature
// validation (local development only).
func NewHandler(secret string, sink EventSink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{secret: []byte(secret), sink: sink, logger: logger}
}

// Mux returns the full ingress mux: the webhook endpoint plus a health
// check endpoint.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/webhook", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn("rejected webhook delivery", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	raw, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		http.Error(w, "unparseable payload", http.StatusBadRequest)
		return
	}

	deliveryID := github.DeliveryID(r)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	event, ok := translate(deliveryID, raw)
	if !ok {
		// An event type or action we don't act on. Acknowledge and move on.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// The pipeline run must not die with the HTTP request.
	ctx := context.WithoutCancel(r.Context())
	if err := h.sink.HandleEvent(ctx, event); err != nil {
		h.logger.Error("event handling failed",
			"delivery", deliveryID, "kind", string(event.Kind), "error", err)
		http.Error(w, "event handling failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// translate maps a parsed GitHub payload onto a pipeline event. Returns
// ok=false for deliveries the pipeline ignores.
func translate(deliveryID string, raw interface{}) (*events.Event, bool) {
	now := time.Now().UTC()

	switch e := raw.(type) {
	case *github.IssuesEvent:
		var kind events.Kind
		switch e.GetAction() {
		case "opened":
			kind = events.KindIssueOpened
		case "edited":
			kind = events.KindIssueEdited
		default:
			return nil, false
		}

		payload := &events.IssuePayload{Issue: issueFromGitHub(e.GetRepo(), e.GetIssue())}
		if changes := e.GetChanges(); changes != nil {
			if changes.Title != nil {
				payload.ChangedFields = append(payload.ChangedFields, "title")
			}
			if changes.Body != nil {
				payload.ChangedFields = append(payload.ChangedFields, "body")
			}
		}
		return &events.Event{
			DeliveryID: deliveryID, Kind: kind, ReceivedAt: now, Issue: payload,
		}, true

	case *github.IssueCommentEvent:
		if e.GetAction() != "created" {
			return nil, false
		}
		return &events.Event{
			DeliveryID: deliveryID,
			Kind:       events.KindCommentCreated,
			ReceivedAt: now,
			Comment: &events.CommentPayload{
				IssueRef: types.IssueRef{
					Owner:  e.GetRepo().GetOwner().GetLogin(),
					Repo:   e.GetRepo().GetName(),
					Number: e.GetIssue().GetNumber(),
				},
				Author: e.GetComment().GetUser().GetLogin(),
				Body:   e.GetComment().GetBody(),
			},
		}, true

	case *github.PullRequestEvent:
		var kind events.Kind
		switch e.GetAction() {
		case "opened":
			kind = events.KindPROpened
		case "closed":
			kind = events.KindPRClosed
		default:
			return nil, false
		}
		return &events.Event{
			DeliveryID: deliveryID,
			Kind:       kind,
			ReceivedAt: now,
			PR: &events.PRPayload{
				Ref: types.IssueRef{
					Owner:  e.GetRepo().GetOwner().GetLogin(),
					Repo:   e.GetRepo().GetName(),
					Number: e.GetPullRequest().GetNumber(),
				},
				Branch: e.GetPullRequest().GetHead().GetRef(),
				Merged: e.GetPullRequest().GetMerged(),
			},
		}, true
	}

	return nil, false
}

func issueFromGitHub(repo *github.Repository, issue *github.Issue) types.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return types.Issue{
		Ref: types.IssueRef{
			Owner:  repo.GetOwner().GetLogin(),
			Repo:   repo.GetName(),
			Number: issue.GetNumber(),
		},
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
		State:  issue.GetState(),
		Author: issue.GetUser().GetLogin(),
	}
}
