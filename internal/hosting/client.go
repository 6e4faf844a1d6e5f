package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v50/github"
	"golang.org/x/oauth2"

	"github.com/triagekit/triagekit/internal/types"
)

// GitHubClient implements Host against the GitHub REST API.
type GitHubClient struct {
	gh *github.Client
}

var _ Host = (*GitHubClient)(nil)

// NewGitHubClient creates an authenticated GitHub client.
func NewGitHubClient(token string) (*GitHubClient, error) {
	if token == "" {
		return nil, errors.New("GitHub token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubClient{gh: github.NewClient(tc)}, nil
}

// translateErr maps GitHub API failures onto the package sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
	}
	return err
}

func (c *GitHubClient) GetRepository(ctx context.Context, owner, repo string) (types.RepoMetadata, error) {
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return types.RepoMetadata{}, translateErr(err)
	}
	return types.RepoMetadata{
		FullName:      r.GetFullName(),
		Language:      r.GetLanguage(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
	}, nil
}

func (c *GitHubClient) GetIssue(ctx context.Context, ref types.IssueRef) (types.Issue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return types.Issue{}, translateErr(err)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	return types.Issue{
		Ref:    ref,
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
		State:  issue.GetState(),
		Author: issue.GetUser().GetLogin(),
	}, nil
}

func (c *GitHubClient) GetFile(ctx context.Context, owner, repo, path, branch string) (File, error) {
	fc, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return File{}, translateErr(err)
	}
	if fc == nil {
		// Path resolved to a directory listing.
		return File{}, fmt.Errorf("%w: %s is not a file", ErrNotFound, path)
	}

	content, err := fc.GetContent()
	if err != nil {
		return File{}, fmt.Errorf("decoding content of %s: %w", path, err)
	}

	return File{Path: path, Content: content, SHA: fc.GetSHA()}, nil
}

func (c *GitHubClient) CreateFile(ctx context.Context, owner, repo, path, branch, message, content string) error {
	_, _, err := c.gh.Repositories.CreateFile(ctx, owner, repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
	})
	return translateErr(err)
}

func (c *GitHubClient) UpdateFile(ctx context.Context, owner, repo, path, branch, message, content, sha string) error {
	_, _, err := c.gh.Repositories.UpdateFile(ctx, owner, repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
		SHA:     github.String(sha),
	})
	return translateErr(err)
}

func (c *GitHubClient) DeleteFile(ctx context.Context, owner, repo, path, branch, message, sha string) error {
	_, _, err := c.gh.Repositories.DeleteFile(ctx, owner, repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Branch:  github.String(branch),
		SHA:     github.String(sha),
	})
	return translateErr(err)
}

func (c *GitHubClient) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "refs/heads/"+branch)
	if err != nil {
		return "", translateErr(err)
	}
	return ref.GetObject().GetSHA(), nil
}

func (c *GitHubClient) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	_, _, err := c.gh.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	return translateErr(err)
}

func (c *GitHubClient) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(head),
		Base:  github.String(base),
	})
	if err != nil {
		return PullRequest{}, translateErr(err)
	}
	return PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

func (c *GitHubClient) AddLabels(ctx context.Context, ref types.IssueRef, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, ref.Owner, ref.Repo, ref.Number, labels)
	return translateErr(err)
}

func (c *GitHubClient) RemoveLabel(ctx context.Context, ref types.IssueRef, label string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, ref.Owner, ref.Repo, ref.Number, label)
	err = translateErr(err)
	if errors.Is(err, ErrNotFound) {
		// Removing an absent label is a no-op, not a failure.
		return nil
	}
	return err
}

func (c *GitHubClient) CreateComment(ctx context.Context, ref types.IssueRef, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, ref.Owner, ref.Repo, ref.Number, &github.IssueComment{
		Body: github.String(body),
	})
	return translateErr(err)
}

func (c *GitHubClient) CloseIssue(ctx context.Context, ref types.IssueRef) error {
	_, _, err := c.gh.Issues.Edit(ctx, ref.Owner, ref.Repo, ref.Number, &github.IssueRequest{
		State: github.String("closed"),
	})
	return translateErr(err)
}
