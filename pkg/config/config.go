// Package config resolves the deployment configuration from the CI
// environment. The result is built once per run and passed down explicitly;
// nothing below the command layer reads the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/pagepush/pagepush/pkg/git"
	pagepushlog "github.com/pagepush/pagepush/pkg/log"
	"github.com/pagepush/pagepush/pkg/logs/redact"
	"go.uber.org/multierr"
)

const (
	// DefaultBaseBranch is used when neither the inputs nor the event name one.
	DefaultBaseBranch = "master"

	// DefaultServerURL is the GitHub host used to build the remote URL.
	DefaultServerURL = "https://github.com"

	// FileEnv names an optional YAML file of inputs.
	FileEnv = "PAGEPUSH_CONFIG"
)

// Config is the resolved deployment configuration. Treat it as read-only.
type Config struct {
	// Repository is "owner/name".
	Repository string

	AccessToken string
	GitHubToken string

	// Branch receives the deployment.
	Branch string
	// BaseBranch is checked out in the workspace after the run.
	BaseBranch string
	// Folder is the build output, relative to Workspace.
	Folder string

	CommitterName  string
	CommitterEmail string

	// CNAME is an optional custom domain written into Folder.
	CNAME string

	// Workspace is the absolute path of the checked out repository.
	Workspace string
	// SHA is the commit that triggered the run.
	SHA string

	ServerURL string

	// RemoteURL embeds the credential. Never log it.
	RemoteURL string
}

// FolderPath returns the absolute path of the build folder.
func (c *Config) FolderPath() string {
	return filepath.Join(c.Workspace, c.Folder)
}

// Committer returns the identity recorded on deployment commits.
func (c *Config) Committer() git.Identity {
	return git.Identity{Name: c.CommitterName, Email: c.CommitterEmail}
}

// LogFields returns key-value pairs describing the run, without credentials.
func (c *Config) LogFields() []interface{} {
	return []interface{}{
		"repository", c.Repository,
		"branch", c.Branch,
		"base", c.BaseBranch,
		"folder", c.Folder,
		"sha", c.SHA,
	}
}

// ValidationError reports an unusable configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Validate checks the invariants the deployment relies on. All problems are
// reported together; each is a *ValidationError.
func (c *Config) Validate() error {
	var errs []error
	if c.AccessToken == "" && c.GitHubToken == "" {
		errs = append(errs, &ValidationError{
			Field:   "ACCESS_TOKEN",
			Message: "provide either ACCESS_TOKEN or GITHUB_TOKEN to deploy",
		})
	}
	if c.Branch == "" {
		errs = append(errs, &ValidationError{Field: "BRANCH", Message: "is required"})
	}
	switch {
	case c.Folder == "":
		errs = append(errs, &ValidationError{Field: "FOLDER", Message: "is required"})
	case strings.HasPrefix(c.Folder, "/") || strings.HasPrefix(c.Folder, "./"):
		errs = append(errs, &ValidationError{
			Field:   "FOLDER",
			Message: fmt.Sprintf("%q cannot be prefixed with '/' or './'; reference the folder name directly", c.Folder),
		})
	}
	if c.Repository == "" {
		errs = append(errs, &ValidationError{Field: "GITHUB_REPOSITORY", Message: "is required"})
	}
	if c.RemoteURL == "" && len(errs) == 0 {
		errs = append(errs, &ValidationError{Field: "RemoteURL", Message: "is empty"})
	}
	return multierr.Combine(errs...)
}

// RemoteURL builds the authenticated HTTPS remote. A personal access token is
// used as the user name; an installation token goes with x-access-token.
func RemoteURL(serverURL, repository, accessToken, gitHubToken string) string {
	host := strings.TrimSuffix(serverURL, "/")
	if host == "" {
		host = DefaultServerURL
	}
	scheme := "https://"
	if i := strings.Index(host, "://"); i >= 0 {
		scheme = host[:i+3]
		host = host[i+3:]
	}

	credential := accessToken
	if credential == "" {
		credential = "x-access-token:" + gitHubToken
	}
	return fmt.Sprintf("%s%s@%s/%s.git", scheme, credential, host, repository)
}

// BranchResolver looks up a repository's default branch through the API.
type BranchResolver interface {
	DefaultBranch(ctx context.Context, repository, token string) (string, error)
}

// Options configures Load.
type Options struct {
	// Env defaults to the process environment.
	Env Source
	// Resolver is consulted when no base branch is configured. Optional.
	Resolver BranchResolver
	// Getwd defaults to os.Getwd.
	Getwd func() (string, error)
}

// Load resolves and validates the configuration. Tokens are registered with
// the process-wide redactor before Load returns.
func Load(ctx context.Context, opts Options) (*Config, error) {
	env := opts.Env
	if env == nil {
		env = EnvSource{}
	}
	getwd := opts.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}

	in := inputs{env: env}
	if path := in.ambient(FileEnv); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		in.file = file
	}

	cfg := &Config{
		AccessToken: in.get("ACCESS_TOKEN"),
		GitHubToken: in.get("GITHUB_TOKEN"),
		Branch:      in.get("BRANCH"),
		BaseBranch:  in.get("BASE_BRANCH"),
		Folder:      in.get("FOLDER"),
		CNAME:       in.get("CNAME"),
		Repository:  in.ambient("GITHUB_REPOSITORY"),
		Workspace:   in.ambient("GITHUB_WORKSPACE"),
		SHA:         in.ambient("GITHUB_SHA"),
		ServerURL:   in.ambient("GITHUB_SERVER_URL"),
	}
	redact.AddSecret(cfg.AccessToken)
	redact.AddSecret(cfg.GitHubToken)

	var event Event
	if path := in.ambient("GITHUB_EVENT_PATH"); path != "" {
		ev, err := ReadEvent(path)
		if err != nil {
			pagepushlog.Warn("ignoring event payload", "error", err)
		} else {
			event = ev
		}
	}

	if cfg.Repository == "" {
		cfg.Repository = event.Repository
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}

	if cfg.Workspace == "" {
		wd, err := getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine workspace: %w", err)
		}
		cfg.Workspace = wd
	}
	if abs, err := filepath.Abs(cfg.Workspace); err == nil {
		cfg.Workspace = abs
	}

	if cfg.SHA == "" {
		if sha, err := headSHA(cfg.Workspace); err == nil {
			cfg.SHA = sha
		} else {
			pagepushlog.Debug("could not read HEAD of workspace", "error", err)
		}
	}

	id := git.ResolveIdentity(git.IdentityFromEnv(git.IdentityOptions{
		PusherName:  event.PusherName,
		PusherEmail: event.PusherEmail,
	}))
	cfg.CommitterName = id.Name
	cfg.CommitterEmail = id.Email

	if cfg.AccessToken != "" || cfg.GitHubToken != "" {
		cfg.RemoteURL = RemoteURL(cfg.ServerURL, cfg.Repository, cfg.AccessToken, cfg.GitHubToken)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.BaseBranch == "" {
		cfg.BaseBranch = resolveBaseBranch(ctx, cfg, event, opts.Resolver)
	}

	return cfg, nil
}

func resolveBaseBranch(ctx context.Context, cfg *Config, event Event, resolver BranchResolver) string {
	if event.DefaultBranch != "" {
		return event.DefaultBranch
	}
	if resolver != nil {
		token := cfg.AccessToken
		if token == "" {
			token = cfg.GitHubToken
		}
		branch, err := resolver.DefaultBranch(ctx, cfg.Repository, token)
		if err == nil && branch != "" {
			return branch
		}
		pagepushlog.Warn("could not look up default branch, using "+DefaultBaseBranch, "repository", cfg.Repository, "error", err)
	}
	return DefaultBaseBranch
}

// headSHA reads HEAD of the repository containing dir.
func headSHA(dir string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}
