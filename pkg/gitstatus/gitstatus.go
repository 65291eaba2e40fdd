// Package gitstatus summarizes the version-control impact of a sync, so a
// pull can immediately show which tracked files it touched.
package gitstatus

import (
	"fmt"
	"sort"

	git "gopkg.in/src-d/go-git.v4"

	"github.com/aemtools/aemcli/pkg/errors"
)

// Summary returns the short worktree status of the git repository
// containing dir, one "XY path" line per changed file. A checkout that
// isn't under version control yields no lines.
func Summary(dir string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(dir,
		&git.PlainOpenOptions{DetectDotGit: true})
	if err == git.ErrRepositoryNotExists {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithContext(err, "open git repository")
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.WithContext(err, "open worktree")
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, errors.WithContext(err, "compute git status")
	}

	var lines []string
	for path, fileStatus := range status {
		if fileStatus.Staging == git.Unmodified &&
			fileStatus.Worktree == git.Unmodified {
			continue
		}
		lines = append(lines, fmt.Sprintf("%c%c %s",
			fileStatus.Staging, fileStatus.Worktree, path))
	}
	sort.Strings(lines)
	return lines, nil
}
