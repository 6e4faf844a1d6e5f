// Package orchestrator drives the triage pipeline: it admits inbound
// events, walks issue records through the processing state machine, and
// coordinates analysis, solution generation, the safety gate, and the fix
// applicator.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/triagekit/triagekit/internal/ai"
	"github.com/triagekit/triagekit/internal/commands"
	"github.com/triagekit/triagekit/internal/config"
	"github.com/triagekit/triagekit/internal/events"
	"github.com/triagekit/triagekit/internal/fixer"
	"github.com/triagekit/triagekit/internal/gates"
	"github.com/triagekit/triagekit/internal/hosting"
	"github.com/triagekit/triagekit/internal/storage"
	"github.com/triagekit/triagekit/internal/types"
)

// Analyzer produces classifications and remediation plans.
type Analyzer interface {
	Analyze(ctx context.Context, issue types.Issue, meta types.RepoMetadata) (ai.AnalysisResult, error)
	GenerateSolution(ctx context.Context, issue types.Issue, classification types.Classification, codebaseContext string) (*types.RemediationPlan, error)
}

// Applicator applies approved edit sets.
type Applicator interface {
	Apply(ctx context.Context, issue types.Issue, classification types.Classification, editSet *types.EditSet) (*fixer.Result, error)
}

// Orchestrator is the pipeline state machine.
type Orchestrator struct {
	cfg      config.Config
	host     hosting.Host
	analyzer Analyzer
	fixer    Applicator
	store    storage.Storage
	logger   *slog.Logger

	limiter *repoLimiter
	locks   *keyedMutex
}

// New creates an Orchestrator. The config is copied and never mutated.
func New(cfg config.Config, host hosting.Host, analyzer Analyzer, applicator Applicator, store storage.Storage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.RateLimitInterval
	if interval <= 0 {
		interval = 6 * time.Second
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &Orchestrator{
		cfg:      cfg,
		host:     host,
		analyzer: analyzer,
		fixer:    applicator,
		store:    store,
		logger:   logger,
		limiter:  newRepoLimiter(rate.Every(interval), burst),
		locks:    newKeyedMutex(),
	}
}

func (o *Orchestrator) gatePolicy() gates.Policy {
	return gates.Policy{
		ConfidenceThreshold: o.cfg.ConfidenceThreshold,
		MaxComplexity:       o.cfg.MaxAutoFixComplexity,
		CriticalPaths:       o.cfg.CriticalPaths,
		DeniedContent:       o.cfg.DeniedContent,
	}
}

// HandleEvent dispatches one validated inbound event. Dropped and filtered
// events return nil; only infrastructure failures surface as errors.
func (o *Orchestrator) HandleEvent(ctx context.Context, event *events.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	o.logger.Info("event received",
		"delivery", event.DeliveryID, "kind", string(event.Kind))

	switch event.Kind {
	case events.KindIssueOpened, events.KindIssueEdited:
		return o.handleIssueEvent(ctx, event)
	case events.KindCommentCreated:
		return o.handleCommentEvent(ctx, event)
	case events.KindPROpened:
		o.audit(ctx, event.PR.Ref.Key(), "pr_opened", map[string]any{
			"delivery": event.DeliveryID, "branch": event.PR.Branch,
		})
		return nil
	case events.KindPRClosed:
		return o.handlePRClosed(ctx, event)
	default:
		return fmt.Errorf("unhandled event kind %q", event.Kind)
	}
}

func (o *Orchestrator) handleIssueEvent(ctx context.Context, event *events.Event) error {
	issue := event.Issue.Issue

	if allowed, notify := o.limiter.Allow(issue.Ref.RepoFullName()); !allowed {
		o.logger.Warn("event dropped by rate limit",
			"delivery", event.DeliveryID, "issue", issue.Ref.Key())
		o.audit(ctx, issue.Ref.Key(), "event_dropped", map[string]any{
			"delivery": event.DeliveryID, "reason": "rate_limited",
		})
		if notify {
			o.comment(ctx, issue.Ref, rateLimitedComment(o.cfg.BotName))
		}
		return nil
	}

	// Edits that touched neither title nor body change nothing we analyze.
	if event.Kind == events.KindIssueEdited && len(event.Issue.ChangedFields) > 0 {
		relevant := false
		for _, field := range event.Issue.ChangedFields {
			if field == "title" || field == "body" {
				relevant = true
			}
		}
		if !relevant {
			return nil
		}
	}

	return o.processIssue(ctx, event.DeliveryID, issue, false)
}

func (o *Orchestrator) handleCommentEvent(ctx context.Context, event *events.Event) error {
	payload := event.Comment

	// Never react to our own comments.
	if strings.EqualFold(payload.Author, o.cfg.BotName) {
		return nil
	}

	cmd, found := commands.Parse(payload.Body, o.cfg.BotName)
	if !found {
		return nil
	}

	if allowed, notify := o.limiter.Allow(payload.IssueRef.RepoFullName() + CommentChannelSuffix); !allowed {
		o.audit(ctx, payload.IssueRef.Key(), "event_dropped", map[string]any{
			"delivery": event.DeliveryID, "reason": "rate_limited", "command": cmd.Raw,
		})
		if notify {
			o.comment(ctx, payload.IssueRef, rateLimitedComment(o.cfg.BotName))
		}
		return nil
	}

	o.audit(ctx, payload.IssueRef.Key(), "command_received", map[string]any{
		"delivery": event.DeliveryID, "command": string(cmd.Action), "author": payload.Author,
	})

	switch cmd.Action {
	case commands.ActionAnalyze:
		issue, err := o.host.GetIssue(ctx, payload.IssueRef)
		if err != nil {
			return fmt.Errorf("fetching issue for analyze command: %w", err)
		}
		return o.processIssue(ctx, event.DeliveryID, issue, true)

	case commands.ActionFix:
		return o.handleFixCommand(ctx, payload.IssueRef)

	case commands.ActionSuggest:
		return o.handleSuggestCommand(ctx, payload.IssueRef)

	case commands.ActionHelp:
		o.comment(ctx, payload.IssueRef, commands.HelpText(o.cfg.BotName))
		return nil
	}
	return nil
}

// processIssue runs the analysis pipeline for one issue. When forced (an
// explicit analyze command) the processed-marker check is skipped; deny
// labels and closed state still filter.
func (o *Orchestrator) processIssue(ctx context.Context, deliveryID string, issue types.Issue, force bool) error {
	if reason := o.admission(issue, force); reason != "" {
		o.logger.Debug("event filtered", "issue", issue.Ref.Key(), "reason", reason)
		return nil
	}

	key := issue.Ref.Key()
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	record, err := o.store.GetRecord(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		record = &types.IssueRecord{Ref: issue.Ref, Status: types.StatusPending}
	} else if err != nil {
		return fmt.Errorf("loading record for %s: %w", key, err)
	}
	record.Title = issue.Title
	record.Body = issue.Body

	record.Status = types.StatusAnalyzing
	if err := o.store.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("persisting analyzing state for %s: %w", key, err)
	}
	if err := o.host.AddLabels(ctx, issue.Ref, []string{o.cfg.ProcessingLabel}); err != nil {
		o.logger.Warn("adding processing label failed", "issue", key, "error", err)
	}

	meta, err := o.host.GetRepository(ctx, issue.Ref.Owner, issue.Ref.Repo)
	if err != nil {
		return o.markError(ctx, record, fmt.Errorf("resolving repository: %w", err))
	}

	analysis, err := o.analyzer.Analyze(ctx, issue, meta)
	if err != nil {
		return o.markError(ctx, record, fmt.Errorf("analysis failed: %w", err))
	}

	record.Classification = analysis.Classification
	record.Status = types.StatusAnalyzed
	if err := o.store.UpsertRecord(ctx, record); err != nil {
		return o.markError(ctx, record, fmt.Errorf("persisting analysis: %w", err))
	}
	o.audit(ctx, key, "analysis_completed", map[string]any{
		"delivery": deliveryID,
		"type":     string(analysis.Classification.Type),
		"priority": string(analysis.Classification.Priority),
		"degraded": analysis.Degraded,
	})

	o.applyClassificationLabels(ctx, issue.Ref, analysis.Classification)
	o.comment(ctx, issue.Ref, analysisComment(analysis))

	// Solution generation is best effort. A failed plan never blocks the
	// record; it just forecloses the auto-fix path.
	plan, err := o.analyzer.GenerateSolution(ctx, issue, analysis.Classification, "")
	if err != nil {
		o.logger.Warn("solution generation failed", "issue", key, "error", err)
	} else {
		record.Plan = plan
		if err := o.store.UpsertRecord(ctx, record); err != nil {
			o.logger.Warn("persisting plan failed", "issue", key, "error", err)
		}
	}

	// The gate fails closed on a plan without an edit set, so an
	// auto-fixable issue always terminates at fixed or manual_required.
	if analysis.Classification.AutoFixable && o.cfg.AutoFixEnabled {
		o.attemptAutoFix(ctx, record, issue)
	}

	now := time.Now().UTC()
	record.ProcessedAt = &now
	if err := o.store.UpsertRecord(ctx, record); err != nil {
		o.logger.Warn("persisting processed timestamp failed", "issue", key, "error", err)
	}
	return nil
}

// admission decides whether an issue enters the pipeline. An empty return
// admits; otherwise the reason names the filter that fired.
func (o *Orchestrator) admission(issue types.Issue, force bool) string {
	if issue.State != "open" {
		return "issue not open"
	}
	for _, label := range issue.Labels {
		for _, deny := range o.cfg.DenyLabels {
			if strings.EqualFold(label, deny) {
				return "denylisted label " + deny
			}
		}
		if !force && strings.EqualFold(label, o.cfg.ProcessedLabel) {
			return "already processed"
		}
	}
	return ""
}

func (o *Orchestrator) attemptAutoFix(ctx context.Context, record *types.IssueRecord, issue types.Issue) {
	key := issue.Ref.Key()
	var editSet *types.EditSet
	if record.Plan != nil {
		editSet = record.Plan.EditSet
	}

	record.Status = types.StatusAutoFixing
	record.AutoFixAttempted = true
	if err := o.store.UpsertRecord(ctx, record); err != nil {
		o.logger.Warn("persisting auto_fixing state failed", "issue", key, "error", err)
	}

	decision := gates.Evaluate(editSet, record.Classification, o.gatePolicy())
	o.audit(ctx, key, "gate_evaluated", map[string]any{
		"allowed": decision.Allowed, "reasons": decision.Reasons,
	})
	if !decision.Allowed {
		o.finishFix(ctx, record, issue.Ref, false, gateRejectionComment(decision))
		return
	}

	result, err := o.fixer.Apply(ctx, issue, record.Classification, editSet)
	if err != nil {
		o.logger.Error("fix application failed", "issue", key, "error", err)
		o.audit(ctx, key, "fix_failed", map[string]any{"error": err.Error()})
		o.finishFix(ctx, record, issue.Ref, false,
			"The automated fix could not be applied and this issue needs manual attention.")
		return
	}

	o.audit(ctx, key, "fix_applied", map[string]any{
		"pr": result.PullRequest.Number, "branch": result.Branch,
		"changed": result.ChangedFiles, "skipped": result.SkippedFiles,
	})
	o.finishFix(ctx, record, issue.Ref, true, fixer.SummaryComment(result))
}

func (o *Orchestrator) finishFix(ctx context.Context, record *types.IssueRecord, ref types.IssueRef, success bool, message string) {
	record.AutoFixSuccessful = &success
	if success {
		record.Status = types.StatusFixed
	} else {
		record.Status = types.StatusManualRequired
	}
	if err := o.store.UpsertRecord(ctx, record); err != nil {
		o.logger.Warn("persisting fix outcome failed", "issue", record.Ref.Key(), "error", err)
	}
	o.comment(ctx, ref, message)
}

// handleFixCommand applies an already-generated fix on demand.
func (o *Orchestrator) handleFixCommand(ctx context.Context, ref types.IssueRef) error {
	key := ref.Key()
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	record, err := o.store.GetRecord(ctx, key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && record.Classification.Type == "") {
		o.comment(ctx, ref, fmt.Sprintf(
			"I don't have an analysis for this issue yet. Run `@%s analyze` first, then try again.",
			o.cfg.BotName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading record for fix command: %w", err)
	}

	issue, err := o.host.GetIssue(ctx, ref)
	if err != nil {
		return fmt.Errorf("fetching issue for fix command: %w", err)
	}

	if record.Plan == nil || record.Plan.EditSet == nil {
		plan, err := o.analyzer.GenerateSolution(ctx, issue, record.Classification, "")
		if err != nil || plan == nil || plan.EditSet == nil {
			o.comment(ctx, ref, "No machine-applicable fix is available for this issue.")
			return nil
		}
		record.Plan = plan
	}

	if !record.Status.CanTransitionTo(types.StatusAutoFixing) {
		o.comment(ctx, ref, fmt.Sprintf("This issue is in state `%s` and cannot be auto-fixed right now.", record.Status))
		return nil
	}

	o.attemptAutoFix(ctx, record, issue)
	return nil
}

// handleSuggestCommand posts a remediation plan without applying anything.
func (o *Orchestrator) handleSuggestCommand(ctx context.Context, ref types.IssueRef) error {
	issue, err := o.host.GetIssue(ctx, ref)
	if err != nil {
		return fmt.Errorf("fetching issue for suggest command: %w", err)
	}

	classification := types.Classification{}
	if record, err := o.store.GetRecord(ctx, ref.Key()); err == nil {
		classification = record.Classification
	}

	plan, err := o.analyzer.GenerateSolution(ctx, issue, classification, "")
	if err != nil {
		o.comment(ctx, ref, "I couldn't generate a remediation plan for this issue right now.")
		return nil
	}
	o.comment(ctx, ref, planComment(plan))
	return nil
}

// handlePRClosed closes the linked issue when one of our fix branches
// merges. Non-merged closes and foreign branches are ignored.
func (o *Orchestrator) handlePRClosed(ctx context.Context, event *events.Event) error {
	payload := event.PR
	if !payload.Merged {
		return nil
	}

	rest, ok := strings.CutPrefix(payload.Branch, "autofix/issue-")
	if !ok {
		return nil
	}
	issueNumber, err := strconv.Atoi(rest)
	if err != nil || issueNumber <= 0 {
		return nil
	}

	ref := types.IssueRef{Owner: payload.Ref.Owner, Repo: payload.Ref.Repo, Number: issueNumber}
	key := ref.Key()
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	record, err := o.store.GetRecord(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading record for merged fix: %w", err)
	}
	if record.Status == types.StatusClosed {
		// A duplicate delivery; the completion comment was already posted.
		return nil
	}

	if err := o.store.UpdateStatus(ctx, key, types.StatusClosed); err != nil {
		return fmt.Errorf("closing record %s: %w", key, err)
	}
	if err := o.host.CloseIssue(ctx, ref); err != nil {
		o.logger.Warn("closing issue on host failed", "issue", key, "error", err)
	}
	o.comment(ctx, ref, fmt.Sprintf(
		"The automated fix (PR #%d) was merged. Closing this issue.", payload.Ref.Number))
	o.audit(ctx, key, "issue_closed", map[string]any{
		"delivery": event.DeliveryID, "pr": payload.Ref.Number,
	})
	return nil
}

// markError moves the record into the error state and tells the reporter.
// The record stays eligible for a later manual analyze command.
func (o *Orchestrator) markError(ctx context.Context, record *types.IssueRecord, cause error) error {
	key := record.Ref.Key()
	o.logger.Error("pipeline failure", "issue", key, "error", cause)

	record.Status = types.StatusError
	if err := o.store.UpsertRecord(ctx, record); err != nil {
		o.logger.Error("persisting error state failed", "issue", key, "error", err)
	}
	o.audit(ctx, key, "pipeline_error", map[string]any{"error": cause.Error()})
	o.comment(ctx, record.Ref, fmt.Sprintf(
		"I hit an error while processing this issue and had to stop. Run `@%s analyze` to retry.",
		o.cfg.BotName))
	return cause
}

func (o *Orchestrator) applyClassificationLabels(ctx context.Context, ref types.IssueRef, classification types.Classification) {
	if err := o.host.RemoveLabel(ctx, ref, o.cfg.ProcessingLabel); err != nil {
		o.logger.Warn("removing processing label failed", "issue", ref.Key(), "error", err)
	}

	labels := []string{o.cfg.ProcessedLabel, string(classification.Type)}
	labels = append(labels, classification.SuggestedLabels...)
	if err := o.host.AddLabels(ctx, ref, dedupe(labels)); err != nil {
		o.logger.Warn("adding classification labels failed", "issue", ref.Key(), "error", err)
	}
}

// comment posts a comment, logging failures instead of surfacing them.
// A lost comment never aborts the pipeline.
func (o *Orchestrator) comment(ctx context.Context, ref types.IssueRef, body string) {
	if err := o.host.CreateComment(ctx, ref, body); err != nil {
		o.logger.Warn("posting comment failed", "issue", ref.Key(), "error", err)
	}
}

// audit appends an action log entry, logging failures instead of surfacing
// them. Audit writes never abort the pipeline.
func (o *Orchestrator) audit(ctx context.Context, key, action string, detail map[string]any) {
	data, err := json.Marshal(detail)
	if err != nil {
		data = []byte("{}")
	}
	entry := &types.ActionLogEntry{IssueKey: key, Action: action, Detail: string(data)}
	if err := o.store.AppendLog(ctx, entry); err != nil {
		o.logger.Warn("audit log append failed", "issue", key, "action", action, "error", err)
	}
}

func dedupe(labels []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, label := range labels {
		if label == "" || seen[strings.ToLower(label)] {
			continue
		}
		seen[strings.ToLower(label)] = true
		out = append(out, label)
	}
	return out
}
