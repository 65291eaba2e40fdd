package transfer

import (
	"bytes"
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/aemtools/aemcli/pkg/pack"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

// Put pushes the scope's local changes to the server: modified and locally
// added paths are packaged with their content, locally deleted paths become
// bare filter roots so installing the package removes them remotely.
// Unchanged paths are never touched.
func (s *Scope) Put(ctx context.Context) (*Report, error) {
	plan, err := s.BuildPlan(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.gateConflicts(plan); err != nil {
		return nil, err
	}

	report := s.Report(plan, Push)
	changes := plan.Changes(Push)
	if len(changes) == 0 {
		return report, nil
	}

	roots := selectRoots(changes, snapshot.DeletedLocal)
	pkg := pack.Package{Name: packageName()}
	var contentPaths []string
	for _, root := range roots {
		pkg.Filters = append(pkg.Filters, s.repoPathOf(root.relPath))
		if root.hasContent {
			contentPaths = append(contentPaths, s.repoPathOf(root.relPath))
		}
	}

	zipContents, err := pack.BuildFromCheckout(fs, s.CheckoutRoot, pkg, contentPaths)
	if err != nil {
		return nil, err
	}

	client := s.client()
	if err := client.UploadPackage(ctx, pkg.Name, bytes.NewReader(zipContents)); err != nil {
		return nil, err
	}
	if err := client.InstallPackage(ctx, pkg.Name); err != nil {
		return nil, err
	}
	// The package already did its job; a failed cleanup only leaves a
	// stale entry in the package manager.
	if err := client.DeletePackage(ctx, pkg.Name); err != nil {
		log.WithError(err).WithField("package", pkg.Name).
			Warn("Failed to clean up the sync package on the server.")
	}
	return report, nil
}
