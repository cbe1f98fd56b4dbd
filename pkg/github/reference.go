package github

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// owner/name
	repoPattern = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)/([A-Za-z0-9._-]+)$`)
	// https://github.com/owner/name(.git) or git@github.com:owner/name(.git)
	repoURLPattern = regexp.MustCompile(`^(?:https?://[^/]+/|git@[^:]+:)([^/]+/[^/]+?)(?:\.git)?/?$`)
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

// ParseRepository parses "owner/name". Clone URLs are accepted too.
func ParseRepository(s string) (Repository, error) {
	s = strings.TrimSpace(s)

	if m := repoURLPattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	m := repoPattern.FindStringSubmatch(s)
	if m == nil || m[2] == "." || m[2] == ".." {
		return Repository{}, fmt.Errorf("invalid repository %q (expected owner/name)", s)
	}
	return Repository{Owner: m[1], Name: m[2]}, nil
}

// String returns "owner/name".
func (r Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}
