package transfer

import (
	"fmt"
	"io"

	tm "github.com/buger/goterm"

	"github.com/aemtools/aemcli/pkg/snapshot"
)

// Direction says which side's state wins a transfer. It only changes how
// one-sided paths read: a path that exists locally but not on the server is
// an addition when pushing and a deletion when pulling.
type Direction int

const (
	Push Direction = iota
	Pull
)

func (d Direction) reinterpret(c snapshot.Classification) snapshot.Classification {
	switch {
	case d == Push && c == snapshot.AddedRemote:
		return snapshot.DeletedLocal
	case d == Pull && c == snapshot.AddedLocal:
		return snapshot.DeletedRemote
	}
	return c
}

// Report is the user-facing outcome of a plan or transfer: every changed
// path with its status marker, plus any scan warnings.
type Report struct {
	Direction Direction
	Entries   []snapshot.Entry
	Warnings  []snapshot.Warning
}

// Report converts a plan into a report for the given direction. Entry paths
// are absolute repository paths; conflicts keep their markers instead of
// being reinterpreted.
func (s *Scope) Report(plan *Plan, direction Direction) *Report {
	report := &Report{Direction: direction, Warnings: plan.Warnings}
	for _, entry := range plan.Entries {
		if entry.Classification == snapshot.Unchanged {
			continue
		}
		cls := entry.Classification
		if !cls.IsConflict() {
			cls = direction.reinterpret(cls)
		}
		report.Entries = append(report.Entries, snapshot.Entry{
			Path:           s.repoPathOf(entry.Path),
			Kind:           entry.Kind,
			Classification: cls,
		})
	}
	return report
}

// Empty reports whether there is nothing to transfer and nothing to warn
// about.
func (r *Report) Empty() bool {
	return len(r.Entries) == 0 && len(r.Warnings) == 0
}

// Render prints the report in the short status format:
//
//	M    /apps/site/component.html
//	A    /apps/site/new.html
//	D    /apps/site/old.html
//	~ fd /apps/site/broken
func (r *Report) Render(out io.Writer) {
	for _, entry := range r.Entries {
		fmt.Fprintf(out, "%s %s\n",
			colorMarker(entry.Classification), entry.Path)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(out, "%s skipped unreadable %s: %s\n",
			tm.Color("!", tm.YELLOW), warning.Path, warning.Err)
	}
}

func marker(c snapshot.Classification) string {
	switch c {
	case snapshot.Modified:
		return "M"
	case snapshot.AddedLocal, snapshot.AddedRemote:
		return "A"
	case snapshot.DeletedLocal, snapshot.DeletedRemote:
		return "D"
	case snapshot.ConflictFileDir:
		return "~ fd"
	case snapshot.ConflictDirFile:
		return "~ df"
	}
	return "?"
}

// colorMarker pads before coloring so the escape codes don't break the
// column alignment.
func colorMarker(c snapshot.Classification) string {
	text := fmt.Sprintf("%-4s", marker(c))
	switch c {
	case snapshot.Modified:
		return tm.Color(text, tm.YELLOW)
	case snapshot.AddedLocal, snapshot.AddedRemote:
		return tm.Color(text, tm.GREEN)
	case snapshot.DeletedLocal, snapshot.DeletedRemote:
		return tm.Color(text, tm.RED)
	}
	return tm.Color(text, tm.MAGENTA)
}
