package config

import (
	"bufio"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
)

// defaultExcludes are always skipped, on top of whatever the ignore file
// adds. They cover tool droppings that must never end up in a package.
var defaultExcludes = []string{
	".repo",
	".repoignore",
	".vlt",
	".git",
	".vscode",
	".idea",
	".DS_Store",
	"Thumbs.db",
}

// IgnoreRuleSet is an ordered list of glob patterns. A path is excluded when
// any pattern matches its repository-root-relative form or its base name.
type IgnoreRuleSet struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	raw  string
	glob glob.Glob
}

// LoadIgnoreRules reads the .repoignore file under checkoutRoot and combines
// it with the default excludes. A missing file is not an error.
func LoadIgnoreRules(fsys afero.Fs, checkoutRoot string) (*IgnoreRuleSet, error) {
	patterns := append([]string{}, defaultExcludes...)

	ignorePath := filepath.Join(checkoutRoot, IgnoreFileName)
	exists, err := afero.Exists(fsys, ignorePath)
	if err != nil {
		return nil, errors.WithContext(err, "stat ignore file")
	}

	if exists {
		f, err := fsys.Open(ignorePath)
		if err != nil {
			return nil, errors.WithContext(err, "open ignore file")
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.WithContext(err, "read ignore file")
		}
	}

	return NewIgnoreRuleSet(patterns)
}

// NewIgnoreRuleSet compiles the given glob patterns in order.
func NewIgnoreRuleSet(patterns []string) (*IgnoreRuleSet, error) {
	set := &IgnoreRuleSet{}
	for _, raw := range patterns {
		// Trailing slashes mark directory patterns in gitignore-style
		// files; the glob itself matches the name either way.
		trimmed := strings.TrimSuffix(raw, "/")

		compiled, err := glob.Compile(trimmed)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("bad ignore pattern %q", raw))
		}
		set.patterns = append(set.patterns, compiledPattern{raw: raw, glob: compiled})
	}
	return set, nil
}

// Matches reports whether relPath (forward-slash, relative to jcr_root) is
// excluded.
func (set *IgnoreRuleSet) Matches(relPath string) bool {
	if set == nil {
		return false
	}

	base := path.Base(relPath)
	for _, pattern := range set.patterns {
		if pattern.glob.Match(relPath) || pattern.glob.Match(base) {
			log.WithFields(log.Fields{
				"path":    relPath,
				"pattern": pattern.raw,
			}).Debug("Path excluded by ignore rule")
			return true
		}
	}
	return false
}
