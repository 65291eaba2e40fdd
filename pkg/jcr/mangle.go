// Package jcr converts between repository node names and filesystem-safe
// names. Repository names may contain a namespace separator (`jcr:content`)
// which most filesystems and tools handle badly, so checkouts store them
// with the platform encoding used by content packages: `_jcr_content`.
package jcr

import (
	"strings"

	"github.com/aemtools/aemcli/pkg/errors"
)

// escapedUnderscore encodes a literal leading underscore so that mangling
// stays reversible for names that would otherwise collide with the
// namespace marker.
const escapedUnderscore = "%5f"

// MangleName converts a repository node name to its filesystem form.
// `ns:name` becomes `_ns_name`; a literal leading underscore is
// percent-encoded; everything else passes through unchanged.
func MangleName(name string) string {
	if idx := strings.Index(name, ":"); idx > 0 {
		return "_" + name[:idx] + "_" + name[idx+1:]
	}
	if strings.HasPrefix(name, "_") {
		return escapedUnderscore + name[1:]
	}
	return name
}

// DemangleName is the inverse of MangleName. It restores `_ns_name` to
// `ns:name` and decodes an escaped leading underscore. Names without a
// mangling marker pass through unchanged.
func DemangleName(name string) string {
	if strings.HasPrefix(name, "_") {
		rest := name[1:]
		if idx := strings.Index(rest, "_"); idx > 0 {
			return rest[:idx] + ":" + rest[idx+1:]
		}
		return name
	}
	if len(name) >= len(escapedUnderscore) &&
		strings.EqualFold(name[:len(escapedUnderscore)], escapedUnderscore) {
		return "_" + name[len(escapedUnderscore):]
	}
	return name
}

// ManglePath applies MangleName to every segment of a forward-slash path.
func ManglePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = MangleName(segment)
	}
	return strings.Join(segments, "/")
}

// DemanglePath applies DemangleName to every segment of a forward-slash path.
func DemanglePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = DemangleName(segment)
	}
	return strings.Join(segments, "/")
}

// RootDirName is the directory that anchors a checkout. Everything below it
// mirrors the repository tree with mangled segment names.
const RootDirName = "jcr_root"

// SplitCheckoutPath locates the jcr_root anchor in an absolute filesystem
// path and returns the checkout root plus the repository path (`/...`,
// demangled) of the entry below it. It fails when the path is not inside a
// checkout.
func SplitCheckoutPath(absPath string) (checkoutRoot, repoPath string, err error) {
	segments := strings.Split(strings.TrimRight(absPath, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != RootDirName {
			continue
		}
		checkoutRoot = strings.Join(segments[:i+1], "/")
		if checkoutRoot == "" {
			checkoutRoot = "/"
		}
		repoPath = "/" + DemanglePath(strings.Join(segments[i+1:], "/"))
		return checkoutRoot, repoPath, nil
	}
	return "", "", errors.ConfigError{Reason: "not inside a checkout with a " +
		RootDirName + " base directory: " + absPath}
}
