package transfer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
)

// Checkout creates a fresh checkout of repoPath under dir: the jcr_root
// skeleton, the .repo configuration next to it, and an initial pull of the
// server content.
func Checkout(ctx context.Context, cfg config.Config, dir, repoPath string) (*Scope, *Report, error) {
	if !strings.HasPrefix(repoPath, "/") {
		return nil, nil, errors.NewFriendlyError(
			"%q is not a repository path. Paths start at the root, like /apps/my-site.",
			repoPath)
	}
	if repoPath == "/" {
		return nil, nil, errors.NewFriendlyError(
			"Refusing to check out the repository root. Pick a subtree like /apps or /content.")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, errors.WithContext(err, "resolve checkout directory")
	}
	checkoutRoot := filepath.Join(absDir, jcr.RootDirName)

	configPath := filepath.Join(absDir, config.FileName)
	if exists, _ := afero.Exists(fs, configPath); exists {
		return nil, nil, errors.NewFriendlyError(
			"%s already holds a checkout (%s exists). Sync it with `get` instead.",
			absDir, configPath)
	}

	localPath := checkoutRoot
	if repoPath != "/" {
		localPath = filepath.Join(checkoutRoot,
			filepath.FromSlash(jcr.ManglePath(repoPath)))
	}
	if err := fs.MkdirAll(localPath, 0755); err != nil {
		return nil, nil, errors.WithContext(err, "create checkout skeleton")
	}

	ignore, err := config.LoadIgnoreRules(fs, checkoutRoot)
	if err != nil {
		return nil, nil, err
	}

	scope := &Scope{
		Config:       cfg,
		CheckoutRoot: checkoutRoot,
		RepoPath:     repoPath,
		LocalPath:    localPath,
		Ignore:       ignore,
	}
	report, err := scope.Get(ctx, GetOptions{ApplyDeletions: true})
	if err != nil {
		return nil, nil, errors.WithContext(err, "pull initial content")
	}

	// The configuration lands last. A failed pull (typo server, bad
	// credentials) leaves no .repo behind, so the next attempt isn't
	// refused as an existing checkout.
	if err := config.Write(fs, cfg, checkoutRoot); err != nil {
		return nil, nil, err
	}
	return scope, report, nil
}
