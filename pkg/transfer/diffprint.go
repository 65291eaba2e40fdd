package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	tm "github.com/buger/goterm"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
	"github.com/aemtools/aemcli/pkg/pack"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

// ContentDiff prints line diffs for every file that differs between the
// checkout and the server. For Push the server side is the base and the
// local side the change; for Pull it's the other way around. The remote
// content comes from one package download covering the whole scope.
func (s *Scope) ContentDiff(ctx context.Context, direction Direction, out io.Writer) error {
	plan, err := s.BuildPlan(ctx)
	if err != nil {
		return err
	}

	report := s.Report(plan, direction)
	if len(report.Entries) == 0 {
		return nil
	}

	remoteFs, err := s.fetchRemoteContent(ctx, plan)
	if err != nil {
		return err
	}

	for _, entry := range plan.Entries {
		if entry.Classification == snapshot.Unchanged {
			continue
		}
		if entry.Classification.IsConflict() {
			fmt.Fprintf(out, "%s %s\n",
				colorMarker(entry.Classification), s.repoPathOf(entry.Path))
			continue
		}
		if entry.Kind == snapshot.Dir {
			continue
		}

		local, err := readSide(fs, s.localPathOf(entry.Path))
		if err != nil {
			return errors.WithContext(err, "read local file")
		}
		remotePath := jcr.ManglePath(s.repoPathOf(entry.Path))
		remote, err := readSide(remoteFs, remotePath)
		if err != nil {
			return errors.WithContext(err, "read server file")
		}

		base, changed := remote, local
		if direction == Pull {
			base, changed = local, remote
		}
		printFileDiff(out, s.repoPathOf(entry.Path), direction, base, changed)
	}
	return nil
}

// fetchRemoteContent downloads the scope package and unpacks it into an
// in-memory tree keyed by mangled repository path. Nothing remote means an
// empty tree.
func (s *Scope) fetchRemoteContent(ctx context.Context, plan *Plan) (afero.Fs, error) {
	remoteFs := afero.NewMemMapFs()

	remoteHasContent := false
	for _, entry := range plan.Entries {
		if entry.Classification != snapshot.AddedLocal {
			remoteHasContent = true
			break
		}
	}
	if !remoteHasContent {
		return remoteFs, nil
	}

	zipContents, err := s.fetchScopePackage(ctx)
	if err != nil {
		return nil, err
	}
	if err := pack.Unpack(remoteFs, zipContents, "/"); err != nil {
		return nil, err
	}
	return remoteFs, nil
}

func readSide(fsys afero.Fs, path string) ([]byte, error) {
	contents, err := afero.ReadFile(fsys, filepath.FromSlash(path))
	if err != nil {
		if exists, statErr := afero.Exists(fsys, filepath.FromSlash(path)); statErr == nil && !exists {
			return nil, nil
		}
		return nil, err
	}
	return contents, nil
}

func printFileDiff(out io.Writer, repoPath string, direction Direction, base, changed []byte) {
	baseLabel, changedLabel := "server", "local"
	if direction == Pull {
		baseLabel, changedLabel = "local", "server"
	}
	fmt.Fprintf(out, "--- %s (%s)\n", repoPath, baseLabel)
	fmt.Fprintf(out, "+++ %s (%s)\n", repoPath, changedLabel)

	if isBinary(base) || isBinary(changed) {
		fmt.Fprintln(out, "(binary files differ)")
		return
	}

	dmp := diffmatchpatch.New()
	baseChars, changedChars, lines := dmp.DiffLinesToChars(string(base), string(changed))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(baseChars, changedChars, false), lines)

	for _, diff := range diffs {
		for _, line := range splitLines(diff.Text) {
			switch diff.Type {
			case diffmatchpatch.DiffInsert:
				fmt.Fprintln(out, tm.Color("+"+line, tm.GREEN))
			case diffmatchpatch.DiffDelete:
				fmt.Fprintln(out, tm.Color("-"+line, tm.RED))
			default:
				fmt.Fprintln(out, " "+line)
			}
		}
	}
}

func isBinary(contents []byte) bool {
	return bytes.IndexByte(contents, 0) != -1
}

func splitLines(text string) []string {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}
