// Package fixer applies approved edit sets to a repository: it creates the
// fix branch, commits each file change, and opens a labeled pull request.
//
// The fixer never decides whether an edit set is safe. Callers run the
// safety gate first and only hand over edit sets that passed.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/triagekit/triagekit/internal/hosting"
	"github.com/triagekit/triagekit/internal/types"
)

// LabelAutoFix marks pull requests opened by the fixer.
const LabelAutoFix = "auto-fix"

// LabelNeedsTesting is added when the edit set requests human verification.
const LabelNeedsTesting = "needs-testing"

// Applicator turns edit sets into branches, commits, and pull requests.
type Applicator struct {
	host   hosting.Host
	logger *slog.Logger
}

// New creates an Applicator.
func New(host hosting.Host, logger *slog.Logger) *Applicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applicator{host: host, logger: logger}
}

// Result reports what an Apply call changed.
type Result struct {
	Branch       string
	ChangedFiles []string
	SkippedFiles []string
	PullRequest  hosting.PullRequest
}

// BranchName returns the deterministic fix branch for an issue. Reruns for
// the same issue reuse the branch instead of creating autofix/issue-42-2.
func BranchName(issueNumber int) string {
	return fmt.Sprintf("autofix/issue-%d", issueNumber)
}

// Apply commits the edit set on a fix branch and opens a pull request.
//
// Individual file conflicts (the file changed under us) skip that file and
// continue; the apply as a whole fails only when no file could be changed.
func (a *Applicator) Apply(ctx context.Context, issue types.Issue, classification types.Classification, editSet *types.EditSet) (*Result, error) {
	if editSet == nil || len(editSet.Files) == 0 {
		return nil, errors.New("edit set has no file edits")
	}

	owner, repo := issue.Ref.Owner, issue.Ref.Repo

	meta, err := a.host.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("resolving repository %s/%s: %w", owner, repo, err)
	}
	base := meta.DefaultBranch
	if base == "" {
		base = "main"
	}

	branch := BranchName(issue.Ref.Number)
	if err := a.ensureBranch(ctx, owner, repo, branch, base); err != nil {
		return nil, err
	}

	result := &Result{Branch: branch}
	for _, file := range editSet.Files {
		changed, err := a.applyFile(ctx, owner, repo, branch, issue.Ref.Number, file)
		if err != nil {
			if errors.Is(err, hosting.ErrConflict) {
				a.logger.Warn("skipping conflicted file",
					"issue", issue.Ref.Key(), "path", file.Path)
				result.SkippedFiles = append(result.SkippedFiles, file.Path)
				continue
			}
			return nil, fmt.Errorf("applying edit to %s: %w", file.Path, err)
		}
		if changed {
			result.ChangedFiles = append(result.ChangedFiles, file.Path)
		} else {
			result.SkippedFiles = append(result.SkippedFiles, file.Path)
		}
	}

	if len(result.ChangedFiles) == 0 {
		return nil, fmt.Errorf("no files changed (%d skipped)", len(result.SkippedFiles))
	}

	pr, err := a.openPullRequest(ctx, issue, classification, editSet, branch, base, result)
	if err != nil {
		return nil, err
	}
	result.PullRequest = pr

	a.logger.Info("automated fix applied",
		"issue", issue.Ref.Key(),
		"branch", branch,
		"pr", pr.Number,
		"changed", len(result.ChangedFiles),
		"skipped", len(result.SkippedFiles))

	return result, nil
}

// ensureBranch creates the fix branch from base, reusing it if it already
// exists from an earlier attempt.
func (a *Applicator) ensureBranch(ctx context.Context, owner, repo, branch, base string) error {
	sha, err := a.host.GetBranchSHA(ctx, owner, repo, base)
	if err != nil {
		return fmt.Errorf("resolving base branch %s: %w", base, err)
	}

	err = a.host.CreateBranch(ctx, owner, repo, branch, sha)
	if errors.Is(err, hosting.ErrConflict) {
		a.logger.Debug("reusing existing fix branch", "branch", branch)
		return nil
	}
	return err
}

// applyFile performs one file edit on the branch. Returns false without
// error when the edit is a no-op (deleting a file that is already gone).
func (a *Applicator) applyFile(ctx context.Context, owner, repo, branch string, issueNumber int, file types.FileEdit) (bool, error) {
	message := commitMessage(issueNumber, file)

	switch file.Action {
	case types.FileCreate:
		err := a.host.CreateFile(ctx, owner, repo, file.Path, branch, message, file.Content)
		if errors.Is(err, hosting.ErrConflict) {
			// The file already exists; overwrite it at its current revision.
			existing, getErr := a.host.GetFile(ctx, owner, repo, file.Path, branch)
			if getErr != nil {
				return false, getErr
			}
			return true, a.host.UpdateFile(ctx, owner, repo, file.Path, branch, message, file.Content, existing.SHA)
		}
		return err == nil, err

	case types.FileUpdate:
		// An update with neither content nor line edits has nothing to
		// apply; committing it would wipe the file.
		if file.Content == "" && len(file.LineEdits) == 0 {
			return false, nil
		}

		existing, err := a.host.GetFile(ctx, owner, repo, file.Path, branch)
		if errors.Is(err, hosting.ErrNotFound) {
			// Updating a file that does not exist creates it.
			return true, a.host.CreateFile(ctx, owner, repo, file.Path, branch, message, file.Content)
		}
		if err != nil {
			return false, err
		}

		content := file.Content
		if len(file.LineEdits) > 0 {
			content, err = ApplyLineEdits(existing.Content, file.LineEdits)
			if err != nil {
				return false, err
			}
		}
		if content == existing.Content {
			return false, nil
		}
		return true, a.host.UpdateFile(ctx, owner, repo, file.Path, branch, message, content, existing.SHA)

	case types.FileDelete:
		existing, err := a.host.GetFile(ctx, owner, repo, file.Path, branch)
		if errors.Is(err, hosting.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, a.host.DeleteFile(ctx, owner, repo, file.Path, branch, message, existing.SHA)

	default:
		return false, fmt.Errorf("unknown file action %q", file.Action)
	}
}

func (a *Applicator) openPullRequest(ctx context.Context, issue types.Issue, classification types.Classification, editSet *types.EditSet, branch, base string, result *Result) (hosting.PullRequest, error) {
	title := fmt.Sprintf("Automated fix for #%d: %s", issue.Ref.Number, issue.Title)
	body := buildPRBody(issue, editSet, result)

	pr, err := a.host.CreatePullRequest(ctx, issue.Ref.Owner, issue.Ref.Repo, title, body, branch, base)
	if err != nil {
		return hosting.PullRequest{}, fmt.Errorf("opening pull request: %w", err)
	}

	labels := []string{LabelAutoFix, "risk:" + string(editSet.RiskLevel)}
	if classification.Type.IsValid() {
		labels = append(labels, string(classification.Type))
	}
	if editSet.TestsRequired {
		labels = append(labels, LabelNeedsTesting)
	}

	prRef := types.IssueRef{Owner: issue.Ref.Owner, Repo: issue.Ref.Repo, Number: pr.Number}
	if err := a.host.AddLabels(ctx, prRef, labels); err != nil {
		// The pull request exists; losing its labels is not worth failing for.
		a.logger.Warn("labeling pull request failed", "pr", pr.Number, "error", err)
	}

	return pr, nil
}

func commitMessage(issueNumber int, file types.FileEdit) string {
	verb := map[types.FileAction]string{
		types.FileCreate: "Create",
		types.FileUpdate: "Update",
		types.FileDelete: "Delete",
	}[file.Action]
	if verb == "" {
		verb = "Edit"
	}
	return fmt.Sprintf("%s %s (#%d)", verb, file.Path, issueNumber)
}

func buildPRBody(issue types.Issue, editSet *types.EditSet, result *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Automated fix for #%d.\n\n", issue.Ref.Number)
	if editSet.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", editSet.Description)
	}

	b.WriteString("### Changes\n")
	for _, path := range result.ChangedFiles {
		fmt.Fprintf(&b, "- `%s`\n", path)
	}
	if len(result.SkippedFiles) > 0 {
		b.WriteString("\n### Skipped (conflict or no-op)\n")
		for _, path := range result.SkippedFiles {
			fmt.Fprintf(&b, "- `%s`\n", path)
		}
	}

	fmt.Fprintf(&b, "\nConfidence: %.0f%% | Risk: %s", editSet.Confidence*100, editSet.RiskLevel)
	if editSet.TestsRequired {
		b.WriteString(" | Tests required before merge")
	}
	fmt.Fprintf(&b, "\n\nCloses #%d\n", issue.Ref.Number)

	return b.String()
}

// SummaryComment renders the comment posted on the issue after a fix.
func SummaryComment(result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I opened %s with an automated fix (%d file(s) changed, branch `%s`).",
		result.PullRequest.URL, len(result.ChangedFiles), result.Branch)
	if len(result.SkippedFiles) > 0 {
		fmt.Fprintf(&b, " %d file(s) were skipped due to conflicts and may need manual attention.",
			len(result.SkippedFiles))
	}
	b.WriteString(" Please review before merging.")
	return b.String()
}
