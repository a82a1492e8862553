// Package revcount counts the revisions in a project's Git history. The
// provisioning shell exports the result as BUILD_REV_COUNT.
package revcount

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// Count returns the number of commits reachable from HEAD in the
// repository containing dir. A repository without commits counts zero.
func Count(dir string) (uint64, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return 0, fmt.Errorf("opening repository at %s: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("resolving HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, fmt.Errorf("walking history from %s: %w", head.Hash(), err)
	}
	defer iter.Close()

	var n uint64
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking history from %s: %w", head.Hash(), err)
	}
	return n, nil
}
