package snapshot

// Classification says how a path differs between the local and the remote
// snapshot. The diff engine itself only emits the symmetric classifications
// (a path present on one side only is Added* for that side); commands that
// reason about a transfer direction reinterpret those as deletions of the
// opposite side via AsDeletion.
type Classification int

const (
	Unchanged Classification = iota
	Modified
	AddedLocal
	AddedRemote
	DeletedLocal
	DeletedRemote

	// ConflictFileDir is a local file whose remote counterpart is a
	// directory; ConflictDirFile is the inverse. Conflicting paths are
	// never recursed into.
	ConflictFileDir
	ConflictDirFile
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case AddedLocal:
		return "added locally"
	case AddedRemote:
		return "added remotely"
	case DeletedLocal:
		return "deleted locally"
	case DeletedRemote:
		return "deleted remotely"
	case ConflictFileDir:
		return "conflict (local file, remote directory)"
	case ConflictDirFile:
		return "conflict (local directory, remote file)"
	}
	return "unknown"
}

// AsDeletion reinterprets a one-sided presence as a deletion on the other
// side. The engine emits AddedLocal for a local-only path; a `get` sees the
// same fact as DeletedRemote.
func (c Classification) AsDeletion() Classification {
	switch c {
	case AddedLocal:
		return DeletedRemote
	case AddedRemote:
		return DeletedLocal
	}
	return c
}

// IsConflict reports whether the path has a kind mismatch.
func (c Classification) IsConflict() bool {
	return c == ConflictFileDir || c == ConflictDirFile
}

// Entry is one classified path of a diff. Kind is the local side's kind for
// conflicts, and the shared kind otherwise.
type Entry struct {
	Path           string
	Kind           Kind
	Classification Classification
}

// Diff compares two snapshots with a two-pointer merge walk over the
// name-ordered sibling lists. Every path present in either tree gets
// exactly one entry, except paths beneath a kind conflict, which are
// subsumed by the conflict entry. Directories present on both sides derive
// their classification from their subtree and are never fingerprinted.
func Diff(local, remote *Node) []Entry {
	if local == nil || remote == nil {
		return nil
	}
	entries, _ := compare("", local, remote)
	return entries
}

// compare returns the entries for the subtree rooted at path and whether
// any of them differ.
func compare(path string, local, remote *Node) (entries []Entry, dirty bool) {
	if local.Kind != remote.Kind {
		cls := ConflictDirFile
		if local.Kind == File {
			cls = ConflictFileDir
		}
		return []Entry{{Path: path, Kind: local.Kind, Classification: cls}}, true
	}

	if local.Kind == File {
		cls := Unchanged
		if local.Fingerprint != remote.Fingerprint {
			cls = Modified
		}
		return []Entry{{Path: path, Kind: File, Classification: cls}}, cls != Unchanged
	}

	var children []Entry
	i, j := 0, 0
	for i < len(local.Children) || j < len(remote.Children) {
		switch {
		case j >= len(remote.Children) ||
			(i < len(local.Children) && local.Children[i].Name < remote.Children[j].Name):
			children = append(children, subtreeEntries(local.Children[i], AddedLocal)...)
			dirty = true
			i++
		case i >= len(local.Children) ||
			remote.Children[j].Name < local.Children[i].Name:
			children = append(children, subtreeEntries(remote.Children[j], AddedRemote)...)
			dirty = true
			j++
		default:
			childEntries, childDirty := compare(
				childPath(path, local.Children[i].Name),
				local.Children[i], remote.Children[j])
			children = append(children, childEntries...)
			dirty = dirty || childDirty
			i++
			j++
		}
	}

	// The scope root itself has no path and gets no entry.
	if path != "" {
		cls := Unchanged
		if dirty {
			cls = Modified
		}
		entries = append(entries, Entry{Path: path, Kind: Dir, Classification: cls})
	}
	return append(entries, children...), dirty
}

// subtreeEntries classifies a whole one-sided subtree.
func subtreeEntries(node *Node, cls Classification) []Entry {
	entries := []Entry{{Path: node.Path, Kind: node.Kind, Classification: cls}}
	for _, child := range node.Children {
		entries = append(entries, subtreeEntries(child, cls)...)
	}
	return entries
}
