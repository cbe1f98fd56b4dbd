package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	pagepushlog "github.com/pagepush/pagepush/pkg/log"
)

// GetDefaultBranch returns the default branch of owner/repo. Server errors
// and rate limiting are retried per the client's RetryConfig.
func (c *Client) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.GetDelay(attempt - 1)
			pagepushlog.Debug("retrying GitHub request", "repository", owner+"/"+repo, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
		if resp != nil {
			c.tracker.Update(resp.Response)
		}
		if err == nil {
			branch := r.GetDefaultBranch()
			if branch == "" {
				return "", fmt.Errorf("repository %s/%s has no default branch", owner, repo)
			}
			return branch, nil
		}

		lastErr = fromGitHubError(err)
		if !c.retryable(lastErr) {
			break
		}
	}

	return "", c.describe(Repository{Owner: owner, Name: repo}.String(), lastErr)
}

// describe names the likely cause of a failed lookup where one is known.
func (c *Client) describe(repository string, err error) error {
	switch {
	case IsRateLimitError(err):
		if reset := c.RateLimit().Reset; !reset.IsZero() {
			return fmt.Errorf("GitHub rate limit exhausted reading %s, resets at %s: %w",
				repository, reset.UTC().Format(time.RFC3339), err)
		}
		return fmt.Errorf("GitHub rate limit exhausted reading %s: %w", repository, err)
	case IsNotFoundError(err):
		return fmt.Errorf("repository %s not found or not visible to the token: %w", repository, err)
	case IsAuthenticationError(err):
		return fmt.Errorf("token rejected reading %s: %w", repository, err)
	}
	return fmt.Errorf("failed to get repository %s: %w", repository, err)
}

func (c *Client) retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return c.retry.ShouldRetry(apiErr.StatusCode) || IsRateLimitError(err)
	}
	return IsRetryableError(err)
}

// BranchResolver looks up default branches with a fresh client per call.
type BranchResolver struct {
	Options []Option
}

// DefaultBranch resolves the default branch of repository ("owner/name").
func (b BranchResolver) DefaultBranch(ctx context.Context, repository, token string) (string, error) {
	repo, err := ParseRepository(repository)
	if err != nil {
		return "", err
	}
	client, err := NewClient(token, b.Options...)
	if err != nil {
		return "", err
	}
	return client.GetDefaultBranch(ctx, repo.Owner, repo.Name)
}
