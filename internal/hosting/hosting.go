// Package hosting is the code-hosting API boundary. The core consumes the
// narrow Host interface; the GitHub implementation lives in client.go.
package hosting

import (
	"context"
	"errors"

	"github.com/triagekit/triagekit/internal/types"
)

// Sentinel errors the core branches on. Implementations translate their
// API's failure modes into these; everything else passes through wrapped.
var (
	// ErrNotFound: missing file, branch, label, or issue.
	ErrNotFound = errors.New("hosting: not found")

	// ErrConflict: revision mismatch on a file write, or a ref that
	// already exists.
	ErrConflict = errors.New("hosting: conflict")

	// ErrPermission: the token lacks access.
	ErrPermission = errors.New("hosting: permission denied")
)

// File is a repository file at a specific revision.
type File struct {
	Path    string
	Content string
	SHA     string
}

// PullRequest is the result of opening a change request.
type PullRequest struct {
	Number int
	URL    string
}

// Host is the set of hosting-platform operations the pipeline consumes.
type Host interface {
	// GetRepository returns repository metadata including the default branch.
	GetRepository(ctx context.Context, owner, repo string) (types.RepoMetadata, error)

	// GetIssue fetches current issue content.
	GetIssue(ctx context.Context, ref types.IssueRef) (types.Issue, error)

	// GetFile fetches a file's content and revision hash from a branch.
	// Returns ErrNotFound if the path does not exist there.
	GetFile(ctx context.Context, owner, repo, path, branch string) (File, error)

	// CreateFile writes a new file on a branch.
	CreateFile(ctx context.Context, owner, repo, path, branch, message, content string) error

	// UpdateFile replaces a file's content at the given revision hash.
	// Returns ErrConflict if the file changed since the hash was read.
	UpdateFile(ctx context.Context, owner, repo, path, branch, message, content, sha string) error

	// DeleteFile removes a file at the given revision hash.
	DeleteFile(ctx context.Context, owner, repo, path, branch, message, sha string) error

	// GetBranchSHA resolves a branch name to its head commit hash.
	GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error)

	// CreateBranch creates a branch at the given commit hash.
	// Returns ErrConflict if the branch already exists.
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) error

	// CreatePullRequest opens a change request from head onto base.
	CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (PullRequest, error)

	// AddLabels attaches labels to an issue or pull request.
	AddLabels(ctx context.Context, ref types.IssueRef, labels []string) error

	// RemoveLabel detaches a label. Removing a label that is not present
	// is a silent no-op.
	RemoveLabel(ctx context.Context, ref types.IssueRef, label string) error

	// CreateComment posts a comment on an issue.
	CreateComment(ctx context.Context, ref types.IssueRef, body string) error

	// CloseIssue marks an issue closed on the platform.
	CloseIssue(ctx context.Context, ref types.IssueRef) error
}
