// Package snapshot builds comparable tree snapshots of repository content
// and computes classified diffs between them. A snapshot is built fresh for
// every command invocation and never cached across runs.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"

	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
)

// Kind distinguishes files from directories.
type Kind int

const (
	File Kind = iota
	Dir
)

func (k Kind) String() string {
	if k == Dir {
		return "directory"
	}
	return "file"
}

// Node is one entry in a snapshot tree. Paths are repository-relative with
// forward slashes and demangled segment names; the root node has an empty
// path. Fingerprint is the hex sha256 of the content and is only set for
// files. Children are ordered by name so that two snapshots of the same
// content walk identically.
type Node struct {
	Name        string
	Path        string
	Kind        Kind
	Fingerprint string
	Children    []*Node
}

// Child returns the child with the given logical name, or nil.
func (n *Node) Child(name string) *Node {
	for _, child := range n.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// SortChildren orders the children by name, recursively. Builders call it
// once after assembly so the merge-walk in Diff can rely on the order.
func (n *Node) SortChildren() {
	sort.Slice(n.Children, func(i, j int) bool {
		return n.Children[i].Name < n.Children[j].Name
	})
	for _, child := range n.Children {
		child.SortChildren()
	}
}

// Flatten returns every node keyed by path, excluding the root itself.
func (n *Node) Flatten() map[string]*Node {
	result := map[string]*Node{}
	var walk func(node *Node)
	walk = func(node *Node) {
		if node.Path != "" {
			result[node.Path] = node
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)
	return result
}

// Warning records a per-entry scan failure that was recovered from. The
// scan continues; the warning is surfaced so the user knows the snapshot
// may be missing entries.
type Warning struct {
	Path string
	Err  error
}

// Snapshot is an immutable rooted tree representing one side's state at one
// instant.
type Snapshot struct {
	Root     *Node
	Warnings []Warning
}

// HashFile returns the hex sha256 of the file at the given path.
func HashFile(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashBytes returns the hex sha256 of the given content.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
