package fixer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagekit/triagekit/internal/hosting"
	"github.com/triagekit/triagekit/internal/types"
)

// fakeHost is an in-memory hosting.Host for exercising the apply flow.
type fakeHost struct {
	defaultBranch string
	branches      map[string]string          // branch -> sha
	files         map[string]hosting.File    // branch + "\x00" + path -> file
	conflictPaths map[string]bool            // paths whose writes fail with ErrConflict
	prs           []hosting.PullRequest
	prLabels      map[int][]string
	comments      []string
	shaCounter    int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		defaultBranch: "main",
		branches:      map[string]string{"main": "sha-main"},
		files:         map[string]hosting.File{},
		conflictPaths: map[string]bool{},
		prLabels:      map[int][]string{},
	}
}

func (f *fakeHost) key(branch, path string) string { return branch + "\x00" + path }

func (f *fakeHost) seed(branch, path, content string) {
	f.shaCounter++
	f.files[f.key(branch, path)] = hosting.File{
		Path: path, Content: content, SHA: fmt.Sprintf("sha-%d", f.shaCounter),
	}
}

func (f *fakeHost) GetRepository(ctx context.Context, owner, repo string) (types.RepoMetadata, error) {
	return types.RepoMetadata{FullName: owner + "/" + repo, DefaultBranch: f.defaultBranch}, nil
}

func (f *fakeHost) GetIssue(ctx context.Context, ref types.IssueRef) (types.Issue, error) {
	return types.Issue{Ref: ref, State: "open"}, nil
}

func (f *fakeHost) GetFile(ctx context.Context, owner, repo, path, branch string) (hosting.File, error) {
	file, ok := f.files[f.key(branch, path)]
	if !ok {
		return hosting.File{}, hosting.ErrNotFound
	}
	return file, nil
}

func (f *fakeHost) CreateFile(ctx context.Context, owner, repo, path, branch, message, content string) error {
	if f.conflictPaths[path] {
		return hosting.ErrConflict
	}
	if _, ok := f.files[f.key(branch, path)]; ok {
		return hosting.ErrConflict
	}
	f.seed(branch, path, content)
	return nil
}

func (f *fakeHost) UpdateFile(ctx context.Context, owner, repo, path, branch, message, content, sha string) error {
	if f.conflictPaths[path] {
		return hosting.ErrConflict
	}
	existing, ok := f.files[f.key(branch, path)]
	if !ok {
		return hosting.ErrNotFound
	}
	if existing.SHA != sha {
		return hosting.ErrConflict
	}
	f.seed(branch, path, content)
	return nil
}

func (f *fakeHost) DeleteFile(ctx context.Context, owner, repo, path, branch, message, sha string) error {
	if f.conflictPaths[path] {
		return hosting.ErrConflict
	}
	delete(f.files, f.key(branch, path))
	return nil
}

func (f *fakeHost) GetBranchSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	sha, ok := f.branches[branch]
	if !ok {
		return "", hosting.ErrNotFound
	}
	return sha, nil
}

func (f *fakeHost) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	if _, ok := f.branches[branch]; ok {
		return hosting.ErrConflict
	}
	f.branches[branch] = sha
	// New branches start from the base branch's files.
	for key, file := range f.files {
		if strings.HasPrefix(key, f.defaultBranch+"\x00") {
			f.files[f.key(branch, file.Path)] = file
		}
	}
	return nil
}

func (f *fakeHost) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (hosting.PullRequest, error) {
	pr := hosting.PullRequest{
		Number: 100 + len(f.prs),
		URL:    fmt.Sprintf("https://example.test/%s/%s/pull/%d", owner, repo, 100+len(f.prs)),
	}
	f.prs = append(f.prs, pr)
	return pr, nil
}

func (f *fakeHost) AddLabels(ctx context.Context, ref types.IssueRef, labels []string) error {
	f.prLabels[ref.Number] = append(f.prLabels[ref.Number], labels...)
	return nil
}

func (f *fakeHost) RemoveLabel(ctx context.Context, ref types.IssueRef, label string) error {
	return nil
}

func (f *fakeHost) CreateComment(ctx context.Context, ref types.IssueRef, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeHost) CloseIssue(ctx context.Context, ref types.IssueRef) error { return nil }

func testIssue() types.Issue {
	return types.Issue{
		Ref:   types.IssueRef{Owner: "acme", Repo: "widgets", Number: 42},
		Title: "Crash on empty input",
		State: "open",
	}
}

func testEditSet(files ...types.FileEdit) *types.EditSet {
	return &types.EditSet{
		Type:       types.EditCodeChange,
		Files:      files,
		Confidence: 0.9,
		RiskLevel:  types.RiskLow,
	}
}

func TestApplyLineEdits(t *testing.T) {
	content := "one\ntwo\nthree\n"

	tests := []struct {
		name  string
		edits []types.LineEdit
		want  string
	}{
		{
			name:  "replace middle line",
			edits: []types.LineEdit{{Line: 2, Action: types.LineReplace, Content: "TWO"}},
			want:  "one\nTWO\nthree\n",
		},
		{
			name:  "remove first line",
			edits: []types.LineEdit{{Line: 1, Action: types.LineRemove}},
			want:  "two\nthree\n",
		},
		{
			name:  "add before line",
			edits: []types.LineEdit{{Line: 2, Action: types.LineAdd, Content: "inserted"}},
			want:  "one\ninserted\ntwo\nthree\n",
		},
		{
			name:  "append after last line",
			edits: []types.LineEdit{{Line: 4, Action: types.LineAdd, Content: "four"}},
			want:  "one\ntwo\nthree\nfour\n",
		},
		{
			name: "ascending input applied in descending order",
			edits: []types.LineEdit{
				{Line: 1, Action: types.LineReplace, Content: "ONE"},
				{Line: 3, Action: types.LineRemove},
			},
			want: "ONE\ntwo\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyLineEdits(content, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyLineEdits_TwentyLineFile(t *testing.T) {
	var lines []string
	for i := 1; i <= 20; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	content := strings.Join(lines, "\n") + "\n"

	got, err := ApplyLineEdits(content, []types.LineEdit{
		{Line: 3, Action: types.LineReplace, Content: "REPLACED"},
		{Line: 10, Action: types.LineRemove},
		{Line: 15, Action: types.LineAdd, Content: "ADDED"},
	})
	require.NoError(t, err)

	out := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	assert.Len(t, out, 20, "one removed, one added")
	assert.Equal(t, "REPLACED", out[2])
	assert.NotContains(t, out, "line 10")
	assert.Equal(t, "ADDED", out[14], "insert position unaffected by earlier edits")
}

func TestApplyLineEdits_OutOfRange(t *testing.T) {
	_, err := ApplyLineEdits("only\n", []types.LineEdit{{Line: 5, Action: types.LineReplace, Content: "x"}})
	assert.Error(t, err)

	_, err = ApplyLineEdits("only\n", []types.LineEdit{{Line: 0, Action: types.LineRemove}})
	assert.Error(t, err)
}

func TestApply_CreatesBranchAndPullRequest(t *testing.T) {
	host := newFakeHost()
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug, Confidence: 0.9},
		testEditSet(types.FileEdit{Path: "pkg/server.go", Action: types.FileCreate, Content: "package pkg\n"}))
	require.NoError(t, err)

	assert.Equal(t, "autofix/issue-42", result.Branch)
	assert.Equal(t, []string{"pkg/server.go"}, result.ChangedFiles)
	assert.Equal(t, 100, result.PullRequest.Number)
	_, ok := host.branches["autofix/issue-42"]
	assert.True(t, ok)

	labels := host.prLabels[100]
	assert.Contains(t, labels, LabelAutoFix)
	assert.Contains(t, labels, "risk:low")
	assert.Contains(t, labels, "bug")
	assert.NotContains(t, labels, LabelNeedsTesting)
}

func TestApply_ReusesExistingBranch(t *testing.T) {
	host := newFakeHost()
	host.branches["autofix/issue-42"] = "sha-old"
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(types.FileEdit{Path: "a.go", Action: types.FileCreate, Content: "package a\n"}))
	require.NoError(t, err)
	assert.Equal(t, "autofix/issue-42", result.Branch)
}

func TestApply_UpdateOfMissingFileCreatesIt(t *testing.T) {
	host := newFakeHost()
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(types.FileEdit{Path: "new.go", Action: types.FileUpdate, Content: "package new\n"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"new.go"}, result.ChangedFiles)
	file, err := host.GetFile(context.Background(), "acme", "widgets", "new.go", "autofix/issue-42")
	require.NoError(t, err)
	assert.Equal(t, "package new\n", file.Content)
}

func TestApply_UpdateWithLineEdits(t *testing.T) {
	host := newFakeHost()
	host.seed("main", "util.go", "package util\n\nvar debug = true\n")
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(types.FileEdit{
			Path:   "util.go",
			Action: types.FileUpdate,
			LineEdits: []types.LineEdit{
				{Line: 3, Action: types.LineReplace, Content: "var debug = false"},
			},
		}))
	require.NoError(t, err)

	assert.Equal(t, []string{"util.go"}, result.ChangedFiles)
	file, err := host.GetFile(context.Background(), "acme", "widgets", "util.go", "autofix/issue-42")
	require.NoError(t, err)
	assert.Equal(t, "package util\n\nvar debug = false\n", file.Content)
}

func TestApply_ConflictSkipsFileButContinues(t *testing.T) {
	host := newFakeHost()
	host.seed("main", "locked.go", "package locked\n")
	host.conflictPaths["locked.go"] = true
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(
			types.FileEdit{Path: "locked.go", Action: types.FileUpdate, Content: "changed\n"},
			types.FileEdit{Path: "free.go", Action: types.FileCreate, Content: "package free\n"},
		))
	require.NoError(t, err)

	assert.Equal(t, []string{"free.go"}, result.ChangedFiles)
	assert.Equal(t, []string{"locked.go"}, result.SkippedFiles)
}

func TestApply_AllFilesSkippedFails(t *testing.T) {
	host := newFakeHost()
	host.seed("main", "locked.go", "package locked\n")
	host.conflictPaths["locked.go"] = true
	a := New(host, nil)

	_, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(types.FileEdit{Path: "locked.go", Action: types.FileUpdate, Content: "changed\n"}))
	assert.Error(t, err, "an apply that changed nothing is a failure")
	assert.Empty(t, host.prs, "no pull request without changes")
}

func TestApply_UpdateWithoutContentNeverTruncates(t *testing.T) {
	host := newFakeHost()
	host.seed("main", "README.md", "important existing content\n")
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(
			types.FileEdit{Path: "README.md", Action: types.FileUpdate},
			types.FileEdit{Path: "new.go", Action: types.FileCreate, Content: "package new\n"},
		))
	require.NoError(t, err)

	assert.Equal(t, []string{"new.go"}, result.ChangedFiles)
	assert.Equal(t, []string{"README.md"}, result.SkippedFiles)

	got, err := host.GetFile(context.Background(), "acme", "widgets", "README.md", "autofix/issue-42")
	require.NoError(t, err)
	assert.Equal(t, "important existing content\n", got.Content,
		"an update with nothing to apply must not touch the file")
}

func TestApply_OnlyEmptyUpdateFails(t *testing.T) {
	host := newFakeHost()
	host.seed("main", "README.md", "content\n")
	a := New(host, nil)

	_, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(types.FileEdit{Path: "README.md", Action: types.FileUpdate}))
	assert.Error(t, err)
	assert.Empty(t, host.prs)
}

func TestApply_DeleteMissingFileIsNoOp(t *testing.T) {
	host := newFakeHost()
	host.seed("main", "keep.go", "package keep\n")
	a := New(host, nil)

	result, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug},
		testEditSet(
			types.FileEdit{Path: "ghost.go", Action: types.FileDelete},
			types.FileEdit{Path: "keep.go", Action: types.FileDelete},
		))
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.go"}, result.ChangedFiles)
	assert.Equal(t, []string{"ghost.go"}, result.SkippedFiles)
}

func TestApply_EmptyEditSetRejected(t *testing.T) {
	a := New(newFakeHost(), nil)

	_, err := a.Apply(context.Background(), testIssue(), types.Classification{}, nil)
	assert.Error(t, err)

	_, err = a.Apply(context.Background(), testIssue(), types.Classification{}, testEditSet())
	assert.Error(t, err)
}

func TestApply_TestsRequiredLabel(t *testing.T) {
	host := newFakeHost()
	a := New(host, nil)

	es := testEditSet(types.FileEdit{Path: "a.go", Action: types.FileCreate, Content: "package a\n"})
	es.TestsRequired = true

	_, err := a.Apply(context.Background(), testIssue(),
		types.Classification{Type: types.TypeBug}, es)
	require.NoError(t, err)
	assert.Contains(t, host.prLabels[100], LabelNeedsTesting)
}

func TestSummaryComment(t *testing.T) {
	comment := SummaryComment(&Result{
		Branch:       "autofix/issue-42",
		ChangedFiles: []string{"a.go"},
		SkippedFiles: []string{"b.go"},
		PullRequest:  hosting.PullRequest{Number: 100, URL: "https://example.test/pull/100"},
	})
	assert.Contains(t, comment, "https://example.test/pull/100")
	assert.Contains(t, comment, "autofix/issue-42")
	assert.Contains(t, comment, "skipped")
}
