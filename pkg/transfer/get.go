package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
	"github.com/aemtools/aemcli/pkg/pack"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

// GetOptions controls how a pull applies to the checkout.
type GetOptions struct {
	// ApplyDeletions removes local paths that no longer exist on the
	// server. Without it they survive the pull untouched.
	ApplyDeletions bool

	// Plan reuses a plan the caller already built, so a confirmation
	// prompt and the pull act on the same pair of snapshots. Nil builds a
	// fresh one.
	Plan *Plan
}

// Get pulls the scope's server state into the checkout. The new tree is
// staged next to the target and swapped in with a rename, so a failed pull
// leaves the checkout as it was. Ignored files, skipped conflicts and
// (unless approved) local-only paths are carried over into the new tree.
func (s *Scope) Get(ctx context.Context, opts GetOptions) (*Report, error) {
	plan := opts.Plan
	if plan == nil {
		var err error
		plan, err = s.BuildPlan(ctx)
		if err != nil {
			return nil, err
		}
	}
	if err := s.gateConflicts(plan); err != nil {
		return nil, err
	}

	report := s.Report(plan, Pull)
	changes := plan.Changes(Pull)
	if len(changes) == 0 {
		return report, nil
	}

	zipContents, err := s.fetchScopePackage(ctx)
	if err != nil {
		return nil, err
	}

	staging := s.LocalPath + ".staging"
	defer fs.RemoveAll(staging)
	if err := fs.RemoveAll(staging); err != nil {
		return nil, errors.WithContext(err, "clear staging directory")
	}
	if err := pack.Unpack(fs, zipContents, staging); err != nil {
		return nil, err
	}

	// Unpack lays out the whole checkout-relative tree; the scope's slice
	// of it is what gets swapped in.
	stagedScope := staging
	if s.RepoPath != "/" {
		stagedScope = filepath.Join(staging,
			filepath.FromSlash(jcr.ManglePath(s.RepoPath)))
	}

	stagedExists, err := afero.Exists(fs, stagedScope)
	if err != nil {
		return nil, errors.WithContext(err, "check staged tree")
	}
	if !stagedExists {
		// The whole scope is gone on the server.
		if opts.ApplyDeletions {
			if err := fs.RemoveAll(s.LocalPath); err != nil {
				return nil, errors.WithContext(err, "remove deleted scope")
			}
		}
		return report, nil
	}

	if err := s.preserveLocalPaths(plan, changes, opts, stagedScope); err != nil {
		return nil, err
	}
	if err := s.swapIn(stagedScope); err != nil {
		return nil, err
	}
	return report, nil
}

// fetchScopePackage has the server build a package of the scope's current
// content and downloads it. The package definition is created by uploading
// a metadata-only zip carrying the scope filter.
func (s *Scope) fetchScopePackage(ctx context.Context) ([]byte, error) {
	name := packageName()
	stub, err := pack.BuildFromCheckout(fs, s.CheckoutRoot,
		pack.Package{Name: name, Filters: []string{s.RepoPath}}, nil)
	if err != nil {
		return nil, err
	}

	client := s.client()
	if err := client.UploadPackage(ctx, name, bytes.NewReader(stub)); err != nil {
		return nil, err
	}
	if err := client.BuildPackage(ctx, name); err != nil {
		return nil, err
	}
	zipContents, err := client.DownloadPackage(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := client.DeletePackage(ctx, name); err != nil {
		log.WithError(err).WithField("package", name).
			Warn("Failed to clean up the sync package on the server.")
	}
	return zipContents, nil
}

// preserveLocalPaths copies into the staged tree everything the pull must
// not touch: ignored files, conflicting subtrees that were skipped, and
// local-only paths when deletions weren't approved.
func (s *Scope) preserveLocalPaths(plan *Plan, changes []snapshot.Entry,
	opts GetOptions, stagedScope string) error {

	if !opts.ApplyDeletions {
		for _, entry := range changes {
			if entry.Classification != snapshot.DeletedRemote {
				continue
			}
			if err := s.preserve(entry.Path, stagedScope); err != nil {
				return err
			}
		}
	}

	for _, conflictPath := range plan.Conflicts() {
		// Drop the server's version of the conflicting path first so the
		// local one wins cleanly.
		staged := stagedPathOf(stagedScope, conflictPath)
		if err := fs.RemoveAll(staged); err != nil {
			return errors.WithContext(err, "drop staged conflict")
		}
		if err := s.preserve(conflictPath, stagedScope); err != nil {
			return err
		}
	}

	return s.preserveIgnored(stagedScope)
}

// preserve copies the local subtree at the scope-relative path into the
// staged tree. Descendants of already-preserved paths come along for free.
func (s *Scope) preserve(relPath, stagedScope string) error {
	src := s.localPathOf(relPath)
	dst := stagedPathOf(stagedScope, relPath)
	if err := copyTree(src, dst); err != nil {
		return errors.WithContext(err, "preserve local path")
	}
	return nil
}

// preserveIgnored walks the local scope and copies every ignored entry into
// the staged tree so a pull never wipes editor and VCS files.
func (s *Scope) preserveIgnored(stagedScope string) error {
	localExists, err := afero.DirExists(fs, s.LocalPath)
	if err != nil || !localExists {
		return err
	}

	return afero.Walk(fs, s.LocalPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).
				Warn("Failed to check entry while preserving ignored files.")
			return nil
		}
		rel, err := filepath.Rel(s.CheckoutRoot, path)
		if err != nil {
			return nil
		}
		if !s.Ignore.Matches(filepath.ToSlash(rel)) {
			return nil
		}

		scopeRel, err := filepath.Rel(s.LocalPath, path)
		if err != nil {
			return nil
		}
		dst := filepath.Join(stagedScope, scopeRel)
		if err := copyTree(path, dst); err != nil {
			return errors.WithContext(err, "preserve ignored path")
		}
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}

// swapIn replaces the scope's local tree with the staged one in a single
// rename. The old tree is parked next to the target until the swap
// succeeds; if putting the staged tree in place fails after the old one was
// moved away, the rollback is attempted and its failure reported as a
// partial apply.
func (s *Scope) swapIn(stagedScope string) error {
	old := s.LocalPath + ".old"
	if err := fs.RemoveAll(old); err != nil {
		return errors.WithContext(err, "clear previous backup")
	}

	localExists, err := afero.Exists(fs, s.LocalPath)
	if err != nil {
		return errors.WithContext(err, "check scope")
	}
	if localExists {
		if err := fs.Rename(s.LocalPath, old); err != nil {
			return errors.WithContext(err, "park old tree")
		}
	} else if err := fs.MkdirAll(filepath.Dir(s.LocalPath), 0755); err != nil {
		return errors.WithContext(err, "create parent directory")
	}

	if err := fs.Rename(stagedScope, s.LocalPath); err != nil {
		if localExists {
			if rollbackErr := fs.Rename(old, s.LocalPath); rollbackErr != nil {
				return errors.PartialApplyError{
					Op:     "get",
					Detail: "the previous tree is parked at " + old,
				}
			}
		}
		return errors.WithContext(err, "swap in staged tree")
	}

	if localExists {
		if err := fs.RemoveAll(old); err != nil {
			log.WithError(err).WithField("path", old).
				Warn("Failed to remove the replaced tree.")
		}
	}
	return nil
}

func stagedPathOf(stagedScope, relPath string) string {
	if relPath == "" {
		return stagedScope
	}
	return filepath.Join(stagedScope,
		filepath.FromSlash(jcr.ManglePath("/"+relPath)))
}

// copyTree copies a file or directory subtree. Missing sources are skipped
// since the entry may have disappeared between the scan and the copy.
func copyTree(src, dst string) error {
	info, err := fs.Stat(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.IsDir() {
		if err := fs.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return err
		}
		entries, err := afero.ReadDir(fs, src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			err := copyTree(filepath.Join(src, entry.Name()),
				filepath.Join(dst, entry.Name()))
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
