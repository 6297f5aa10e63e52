package github

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/require"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

type fakeIssuesAPI struct {
	comments []*github.IssueComment
	pages    [][]*github.IssueComment

	created []*github.IssueComment
	edited  map[int64]*github.IssueComment

	listErr error
}

func (f *fakeIssuesAPI) ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error) {
	if f.listErr != nil {
		return nil, nil, f.listErr
	}

	if len(f.pages) > 0 {
		page := opts.Page
		if page == 0 {
			page = 1
		}
		next := 0
		if page < len(f.pages) {
			next = page + 1
		}
		return f.pages[page-1], &github.Response{NextPage: next}, nil
	}

	return f.comments, &github.Response{NextPage: 0}, nil
}

func (f *fakeIssuesAPI) CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	f.created = append(f.created, comment)
	return comment, nil, nil
}

func (f *fakeIssuesAPI) EditComment(ctx context.Context, owner, repo string, commentID int64, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	if f.edited == nil {
		f.edited = map[int64]*github.IssueComment{}
	}
	f.edited[commentID] = comment
	return comment, nil, nil
}

func comment(id int64, body string) *github.IssueComment {
	return &github.IssueComment{ID: &id, Body: &body}
}

func TestUpsertStickyComment(t *testing.T) {
	ref := PRRef{Owner: "acme", Repo: "web", Number: 42}

	t.Run("creates when no sticky comment exists", func(t *testing.T) {
		r := require.New(t)
		api := &fakeIssuesAPI{comments: []*github.IssueComment{comment(1, "unrelated")}}
		s := &CommentService{issues: api}

		r.NoError(s.UpsertStickyComment(context.Background(), ref, "hello"))
		r.Len(api.created, 1)
		r.Empty(api.edited)
		r.Contains(api.created[0].GetBody(), commentMarker)
		r.Contains(api.created[0].GetBody(), "hello")
	})

	t.Run("edits the existing sticky comment", func(t *testing.T) {
		r := require.New(t)
		api := &fakeIssuesAPI{comments: []*github.IssueComment{
			comment(1, "unrelated"),
			comment(2, commentMarker+"\nold body"),
		}}
		s := &CommentService{issues: api}

		r.NoError(s.UpsertStickyComment(context.Background(), ref, "new body"))
		r.Empty(api.created)
		r.Len(api.edited, 1)
		r.Contains(api.edited[2].GetBody(), "new body")
	})

	t.Run("follows pagination to find the sticky comment", func(t *testing.T) {
		r := require.New(t)
		api := &fakeIssuesAPI{pages: [][]*github.IssueComment{
			{comment(1, "page one noise")},
			{comment(2, commentMarker+"\nold")},
		}}
		s := &CommentService{issues: api}

		r.NoError(s.UpsertStickyComment(context.Background(), ref, "updated"))
		r.Empty(api.created)
		r.Len(api.edited, 1)
	})

	t.Run("propagates list failures", func(t *testing.T) {
		r := require.New(t)
		api := &fakeIssuesAPI{listErr: errors.New("403 rate limited")}
		s := &CommentService{issues: api}

		err := s.UpsertStickyComment(context.Background(), ref, "body")
		r.Error(err)
		r.ErrorContains(err, "listing PR comments")
	})
}

func TestEnvironmentCommentBodies(t *testing.T) {
	r := require.New(t)

	env := &manifests.Environment{
		Namespace: "pr-42",
		Routes: []manifests.Route{
			{Service: "web", URL: "http://preview.acme.dev/pr-42/"},
			{Service: "api", URL: "http://preview.acme.dev/pr-42/api"},
		},
	}

	body := EnvironmentCreatedBody(env, "0123456")
	r.Contains(body, "pr-42")
	r.Contains(body, "http://preview.acme.dev/pr-42/")
	r.Contains(body, "http://preview.acme.dev/pr-42/api")
	r.Contains(body, "0123456")

	deleted := EnvironmentDeletedBody("pr-42")
	r.Contains(deleted, "pr-42")
	r.Contains(deleted, "removed")
}

func TestParseRepository(t *testing.T) {
	r := require.New(t)

	owner, repo, err := ParseRepository("acme/web")
	r.NoError(err)
	r.Equal("acme", owner)
	r.Equal("web", repo)

	for _, bad := range []string{"", "acme", "acme/", "/web", "a/b/c"} {
		_, _, err := ParseRepository(bad)
		r.Error(err, bad)
		r.True(errors.Is(err, lib.BadUserInputError))
	}
}
