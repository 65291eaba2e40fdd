package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
)

// ScanOptions configures a local scan.
type ScanOptions struct {
	// CheckoutRoot is the jcr_root directory. Ignore rules are evaluated
	// relative to it.
	CheckoutRoot string

	// Dir is the directory (or single file) to snapshot. It must be
	// CheckoutRoot or live below it.
	Dir string

	// Ignore holds the exclusion rules. May be nil.
	Ignore *config.IgnoreRuleSet
}

// workItem is one directory waiting to be enumerated. The scan uses an
// explicit worklist so a failure on one entry is recorded and skipped
// instead of aborting the whole walk.
type workItem struct {
	node  *Node
	fsDir string
}

// ScanLocal walks the checkout below opts.Dir and builds a fingerprinted
// snapshot. Filesystem names are demangled back to their repository form.
// Unreadable entries are recorded as warnings and skipped.
func ScanLocal(fsys afero.Fs, opts ScanOptions) (*Snapshot, error) {
	info, err := fsys.Stat(opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing scope is an empty local side, not an error: checkout
			// and get bootstrap into directories that don't exist yet.
			return &Snapshot{Root: &Node{Kind: Dir}}, nil
		}
		return nil, errors.WithContext(err, "stat scan root")
	}

	snapshot := &Snapshot{}

	if !info.IsDir() {
		fingerprint, err := HashFile(fsys, opts.Dir)
		if err != nil {
			return nil, errors.WithContext(err, "fingerprint scan root")
		}
		snapshot.Root = &Node{Kind: File, Fingerprint: fingerprint}
		return snapshot, nil
	}

	snapshot.Root = &Node{Kind: Dir}
	worklist := []workItem{{node: snapshot.Root, fsDir: opts.Dir}}

	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		infos, err := afero.ReadDir(fsys, item.fsDir)
		if err != nil {
			snapshot.warn(item.node.Path, err)
			continue
		}

		for _, entry := range infos {
			fsPath := filepath.Join(item.fsDir, entry.Name())

			ignorePath, err := relForwardSlash(opts.CheckoutRoot, fsPath)
			if err != nil {
				snapshot.warn(fsPath, err)
				continue
			}
			if opts.Ignore.Matches(ignorePath) {
				continue
			}

			child := &Node{
				Name: jcr.DemangleName(entry.Name()),
			}
			child.Path = childPath(item.node.Path, child.Name)

			if entry.IsDir() {
				child.Kind = Dir
				item.node.Children = append(item.node.Children, child)
				worklist = append(worklist, workItem{node: child, fsDir: fsPath})
				continue
			}

			fingerprint, err := HashFile(fsys, fsPath)
			if err != nil {
				snapshot.warn(child.Path, err)
				continue
			}
			child.Kind = File
			child.Fingerprint = fingerprint
			item.node.Children = append(item.node.Children, child)
		}
	}

	snapshot.Root.SortChildren()
	return snapshot, nil
}

func (s *Snapshot) warn(path string, err error) {
	s.Warnings = append(s.Warnings, Warning{Path: path, Err: err})
	log.WithError(err).WithField("path", path).Warn(
		"Failed to read entry. It won't be part of the snapshot.")
}

func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func relForwardSlash(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.New(fmt.Sprintf("%q is outside the checkout", target))
	}
	return filepath.ToSlash(rel), nil
}
