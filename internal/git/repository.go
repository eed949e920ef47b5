// Package git inspects the repository the CLI runs in: the origin remote,
// which lets job targets refer to "the current repository", and the HEAD
// revision reported as the summary's sources version.
package git

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"

	"github.com/waabox/pipedeck/internal/domain"
)

// ErrNotRepository is returned when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

func open(dir string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return repo, nil
}

// DetectRepository opens the git repository containing dir and returns a
// Repository built from the origin remote URL.
func DetectRepository(dir string) (domain.Repository, error) {
	repo, err := open(dir)
	if err != nil {
		return domain.Repository{}, err
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return domain.Repository{}, fmt.Errorf("no origin remote found: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return domain.Repository{}, errors.New("origin remote has no URL")
	}
	return ParseRemoteURL(urls[0])
}

// HeadRevision returns the commit hash HEAD points to in the repository containing dir.
func HeadRevision(dir string) (string, error) {
	repo, err := open(dir)
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}
