package transfer

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

// Plan is the classified difference between the checkout and the server for
// one scope, taken from two snapshots built for this invocation only.
type Plan struct {
	Entries  []snapshot.Entry
	Warnings []snapshot.Warning
}

type snapshotResult struct {
	snap *snapshot.Snapshot
	err  error
}

// BuildPlan snapshots both sides concurrently and diffs them. Local scan
// warnings carry over into the plan so commands can surface them.
func (s *Scope) BuildPlan(ctx context.Context) (*Plan, error) {
	localCh := make(chan snapshotResult, 1)
	remoteCh := make(chan snapshotResult, 1)

	go func() {
		snap, err := snapshot.ScanLocal(fs, snapshot.ScanOptions{
			CheckoutRoot: s.CheckoutRoot,
			Dir:          s.LocalPath,
			Ignore:       s.Ignore,
		})
		localCh <- snapshotResult{snap, err}
	}()
	go func() {
		snap, err := s.client().ListTree(ctx, s.RepoPath)
		remoteCh <- snapshotResult{snap, err}
	}()

	local, remote := <-localCh, <-remoteCh
	if local.err != nil {
		return nil, errors.WithContext(local.err, "scan checkout")
	}
	if remote.err != nil {
		return nil, errors.WithContext(remote.err, "fetch server tree")
	}

	return &Plan{
		Entries:  snapshot.Diff(local.snap.Root, remote.snap.Root),
		Warnings: local.snap.Warnings,
	}, nil
}

// Conflicts returns the paths with a file/directory kind mismatch.
func (p *Plan) Conflicts() []string {
	var paths []string
	for _, entry := range p.Entries {
		if entry.Classification.IsConflict() {
			paths = append(paths, entry.Path)
		}
	}
	return paths
}

// Changes returns the entries that differ, reinterpreted for the given
// direction. Conflicts are excluded; callers gate on Conflicts first.
func (p *Plan) Changes(direction Direction) []snapshot.Entry {
	var changes []snapshot.Entry
	for _, entry := range p.Entries {
		if entry.Classification == snapshot.Unchanged ||
			entry.Classification.IsConflict() {
			continue
		}
		changes = append(changes, snapshot.Entry{
			Path:           entry.Path,
			Kind:           entry.Kind,
			Classification: direction.reinterpret(entry.Classification),
		})
	}
	return changes
}

// gateConflicts enforces the conflict policy: fail closed, or skip the
// conflicting subtrees when forced.
func (s *Scope) gateConflicts(plan *Plan) error {
	conflicts := plan.Conflicts()
	if len(conflicts) == 0 {
		return nil
	}
	if !s.Config.Force {
		var repoPaths []string
		for _, path := range conflicts {
			repoPaths = append(repoPaths, s.repoPathOf(path))
		}
		return errors.ConflictError{Paths: repoPaths}
	}
	for _, path := range conflicts {
		log.WithField("path", s.repoPathOf(path)).
			Warn("Skipping path with a file/directory kind conflict.")
	}
	return nil
}

// transferRoot is one filter root of a sync package. Roots with content are
// replaced by the payload on install; bare roots are deletions.
type transferRoot struct {
	relPath    string
	hasContent bool
}

// selectRoots reduces a change list to a minimal set of non-overlapping
// filter roots. Entries arrive parent-before-child, so the first selected
// ancestor covers its whole subtree. A directory that is merely Modified is
// not selected itself; its changed descendants are.
func selectRoots(changes []snapshot.Entry, deletion snapshot.Classification) []transferRoot {
	var roots []transferRoot
	for _, entry := range changes {
		if covered(roots, entry.Path) {
			continue
		}
		switch {
		case entry.Classification == deletion:
			roots = append(roots, transferRoot{relPath: entry.Path})
		case entry.Classification == snapshot.Modified && entry.Kind == snapshot.Dir:
			// A modified directory only reflects changes below it; its
			// changed descendants become the roots.
		default:
			roots = append(roots, transferRoot{relPath: entry.Path, hasContent: true})
		}
	}
	return roots
}

func covered(roots []transferRoot, path string) bool {
	for _, root := range roots {
		if root.relPath != "" && strings.HasPrefix(path, root.relPath+"/") {
			return true
		}
	}
	return false
}
