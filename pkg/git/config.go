package git

import (
	"context"
	"fmt"
	"os"
)

// DefaultCommitterName is the committer name when no other identity is available.
const DefaultCommitterName = "pagepush[bot]"

// DefaultCommitterEmail is the committer email when no other identity is available.
const DefaultCommitterEmail = "pagepush[bot]@users.noreply.github.com"

// Identity is the name and email recorded on deployment commits.
type Identity struct {
	Name  string
	Email string
}

// String formats the identity as "Name <email>".
func (i Identity) String() string {
	return FormatGitAuthor(i.Name, i.Email)
}

// IdentityOptions holds the candidate sources for the committer identity.
type IdentityOptions struct {
	// PusherName is the pusher name from the triggering event payload.
	PusherName string

	// PusherEmail is the pusher email from the triggering event payload.
	PusherEmail string

	// EnvName is the committer name from the environment (GIT_COMMITTER_NAME).
	EnvName string

	// EnvEmail is the committer email from the environment (GIT_COMMITTER_EMAIL).
	EnvEmail string
}

// ResolveIdentity resolves the committer identity with the following priority:
// 1. Pusher from the event payload
// 2. Environment variables (GIT_COMMITTER_NAME, GIT_COMMITTER_EMAIL)
// 3. Defaults ("pagepush[bot]")
//
// Name and email are resolved independently, so a pusher without an email
// still gets a usable address.
func ResolveIdentity(opts IdentityOptions) Identity {
	id := Identity{
		Name:  DefaultCommitterName,
		Email: DefaultCommitterEmail,
	}

	if opts.EnvName != "" {
		id.Name = opts.EnvName
	}
	if opts.EnvEmail != "" {
		id.Email = opts.EnvEmail
	}

	if opts.PusherName != "" {
		id.Name = opts.PusherName
	}
	if opts.PusherEmail != "" {
		id.Email = opts.PusherEmail
	}

	return id
}

// IdentityFromEnv fills the environment fields of opts from the process environment.
func IdentityFromEnv(opts IdentityOptions) IdentityOptions {
	opts.EnvName = os.Getenv("GIT_COMMITTER_NAME")
	opts.EnvEmail = os.Getenv("GIT_COMMITTER_EMAIL")
	return opts
}

// ConfigureIdentity writes id into the repository-local user.name and user.email.
func (c *Client) ConfigureIdentity(ctx context.Context, id Identity) error {
	if err := c.SetConfig(ctx, "user.name", id.Name); err != nil {
		return fmt.Errorf("failed to set user.name: %w", err)
	}
	if err := c.SetConfig(ctx, "user.email", id.Email); err != nil {
		return fmt.Errorf("failed to set user.email: %w", err)
	}
	return nil
}

// FormatGitAuthor formats a git author string in the format "Name <email>".
func FormatGitAuthor(name, email string) string {
	if name == "" && email == "" {
		return ""
	}
	if name == "" {
		return email
	}
	if email == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
