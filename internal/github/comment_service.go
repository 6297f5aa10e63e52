package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/rs/zerolog/log"

	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

// commentMarker identifies the platform's sticky comment so re-runs update
// it instead of piling new comments onto the PR.
const commentMarker = "<!-- ephemeral-env -->"

// issuesAPI is the slice of go-github's IssuesService the comment service
// uses.
type issuesAPI interface {
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	EditComment(ctx context.Context, owner, repo string, commentID int64, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
}

type CommentService struct {
	issues issuesAPI
}

func NewCommentService(client *github.Client) *CommentService {
	return &CommentService{issues: client.Issues}
}

// UpsertStickyComment creates the marker comment on first call and edits it
// in place on every later call, keeping at most one comment per PR.
func (s *CommentService) UpsertStickyComment(ctx context.Context, ref PRRef, body string) error {
	body = commentMarker + "\n" + body

	existingID, err := s.findStickyComment(ctx, ref)
	if err != nil {
		return err
	}

	if existingID != 0 {
		log.Debug().Int64("comment_id", existingID).Int("pr", ref.Number).Msg("updating existing PR comment")
		_, _, err = s.issues.EditComment(ctx, ref.Owner, ref.Repo, existingID, &github.IssueComment{Body: &body})
		if err != nil {
			return fmt.Errorf("updating PR comment %d: %w", existingID, err)
		}
		return nil
	}

	log.Debug().Int("pr", ref.Number).Msg("creating PR comment")
	_, _, err = s.issues.CreateComment(ctx, ref.Owner, ref.Repo, ref.Number, &github.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("creating PR comment: %w", err)
	}
	return nil
}

func (s *CommentService) findStickyComment(ctx context.Context, ref PRRef) (int64, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		comments, resp, err := s.issues.ListComments(ctx, ref.Owner, ref.Repo, ref.Number, opts)
		if err != nil {
			return 0, fmt.Errorf("listing PR comments: %w", err)
		}

		for _, comment := range comments {
			if strings.Contains(comment.GetBody(), commentMarker) {
				return comment.GetID(), nil
			}
		}

		if resp.NextPage == 0 {
			return 0, nil
		}
		opts.Page = resp.NextPage
	}
}

// EnvironmentCreatedBody renders the comment posted after a successful
// create, listing the published routes.
func EnvironmentCreatedBody(env *manifests.Environment, commit string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### 🚀 Preview environment ready\n\n")
	fmt.Fprintf(&b, "Namespace: `%s`\n\n", env.Namespace)

	if len(env.Routes) > 0 {
		b.WriteString("| Service | URL |\n|---|---|\n")
		for _, route := range env.Routes {
			fmt.Fprintf(&b, "| %s | %s |\n", route.Service, route.URL)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No services expose an ingress route.\n\n")
	}

	if commit != "" {
		fmt.Fprintf(&b, "Deployed commit: `%s`\n\n", commit)
	}
	b.WriteString("The environment is rebuilt on every push and removed when the PR closes.\n")

	return b.String()
}

// EnvironmentDeletedBody renders the teardown notice. The sticky comment is
// edited rather than deleted so the PR keeps a record of the environment.
func EnvironmentDeletedBody(namespace string) string {
	return fmt.Sprintf("### 🧹 Preview environment removed\n\nNamespace `%s` and everything in it has been deleted.\n", namespace)
}
