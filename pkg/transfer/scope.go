// Package transfer coordinates content moves between a local checkout and
// the repository server: planning (snapshot both sides and diff), push
// (package up local changes and install them) and pull (build a server-side
// package, download it and swap it into the checkout).
package transfer

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
	"github.com/aemtools/aemcli/pkg/remote"
)

var fs = afero.NewOsFs()

// packageName is mocked in tests to make package names predictable.
var packageName = func() string {
	return fmt.Sprintf("aemcli-sync-%d", time.Now().UnixNano())
}

// Scope is one resolved sync target: a path inside a checkout, tied to the
// checkout's configuration and the server it syncs with.
type Scope struct {
	Config       config.Config
	CheckoutRoot string
	RepoPath     string
	LocalPath    string
	Ignore       *config.IgnoreRuleSet

	// Client is created from Config on first use. Tests inject their own.
	Client *remote.Client
}

// ResolveScope locates the checkout containing workPath and loads its
// configuration and ignore rules.
func ResolveScope(workPath string) (*Scope, error) {
	abs, err := filepath.Abs(workPath)
	if err != nil {
		return nil, errors.WithContext(err, "resolve path")
	}

	checkoutRoot, repoPath, err := jcr.SplitCheckoutPath(abs)
	if err != nil {
		return nil, err
	}

	cfg, cfgPath, err := config.Load(fs, filepath.Dir(checkoutRoot))
	if err != nil {
		return nil, errors.WithContext(err, "load configuration")
	}
	if err := cfg.Validate(); err != nil {
		if cfgPath != "" {
			return nil, errors.WithContext(err, fmt.Sprintf("invalid %s", cfgPath))
		}
		return nil, err
	}

	ignore, err := config.LoadIgnoreRules(fs, checkoutRoot)
	if err != nil {
		return nil, errors.WithContext(err, "load ignore rules")
	}

	return &Scope{
		Config:       cfg,
		CheckoutRoot: checkoutRoot,
		RepoPath:     repoPath,
		LocalPath:    abs,
		Ignore:       ignore,
	}, nil
}

func (s *Scope) client() *remote.Client {
	if s.Client == nil {
		s.Client = remote.NewClient(s.Config)
	}
	return s.Client
}

// repoPathOf maps a scope-relative diff path to its absolute repository
// path.
func (s *Scope) repoPathOf(relPath string) string {
	if relPath == "" {
		return s.RepoPath
	}
	if s.RepoPath == "/" {
		return "/" + relPath
	}
	return s.RepoPath + "/" + relPath
}

// localPathOf maps a scope-relative diff path to its mangled filesystem
// location.
func (s *Scope) localPathOf(relPath string) string {
	if relPath == "" {
		return s.LocalPath
	}
	return filepath.Join(s.LocalPath, filepath.FromSlash(jcr.ManglePath("/"+relPath)))
}
