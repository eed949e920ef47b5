package git

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/waabox/pipedeck/internal/domain"
)

// ParseRemoteURL turns a git remote URL into a Repository.
//
// Accepted forms are scp-like SSH (git@host:owner/repo.git), ssh:// URLs and
// http(s):// URLs. Nested GitLab groups keep everything after the first path
// segment in Name ("group" / "sub/project"). RemoteURL is the input unchanged.
func ParseRemoteURL(rawURL string) (domain.Repository, error) {
	var repoPath string
	switch {
	case strings.HasPrefix(rawURL, "https://"), strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "ssh://"):
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			return domain.Repository{}, fmt.Errorf("invalid remote URL: %s", rawURL)
		}
		repoPath = u.Path
	case strings.Contains(rawURL, "@") && strings.Contains(rawURL, ":"):
		_, after, _ := strings.Cut(rawURL, ":")
		repoPath = after
	default:
		return domain.Repository{}, fmt.Errorf("unsupported remote URL format: %s", rawURL)
	}

	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	owner, name, ok := strings.Cut(repoPath, "/")
	if !ok || owner == "" || name == "" {
		return domain.Repository{}, fmt.Errorf("remote URL %s has no owner/repository path", rawURL)
	}
	return domain.Repository{Owner: owner, Name: name, RemoteURL: rawURL}, nil
}
