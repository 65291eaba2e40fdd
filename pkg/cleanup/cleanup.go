// Package cleanup strips volatile repository properties from serialized
// content so that checked-in files don't churn on every sync. The server
// rewrites properties like jcr:lastModified on install, which would
// otherwise show up as a modification on the next status.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
)

// ContentFileName is the serialized node file the cleanup operates on.
const ContentFileName = ".content.xml"

// defaultProperties are stripped when no rules file overrides them. They
// are all written by the server and carry no authored state.
var defaultProperties = []string{
	"jcr:created",
	"jcr:createdBy",
	"jcr:lastModified",
	"jcr:lastModifiedBy",
	"jcr:uuid",
	"jcr:isCheckedOut",
	"jcr:baseVersion",
	"jcr:versionHistory",
	"jcr:predecessors",
	"cq:lastModified",
	"cq:lastModifiedBy",
	"cq:lastReplicated",
	"cq:lastReplicatedBy",
	"cq:lastReplicationAction",
}

// Rules configures which properties the cleanup removes.
type Rules struct {
	Properties []string `json:"properties"`
}

// DefaultRules returns the built-in property set.
func DefaultRules() Rules {
	return Rules{Properties: append([]string{}, defaultProperties...)}
}

// LoadRules reads a YAML rules file. An empty property list falls back to
// the defaults so a rules file can't accidentally disable the cleanup.
func LoadRules(fsys afero.Fs, path string) (Rules, error) {
	contents, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Rules{}, errors.WithContext(err, "read rules file")
	}

	var rules Rules
	if err := yaml.Unmarshal(contents, &rules); err != nil {
		return Rules{}, errors.WithContext(err, fmt.Sprintf("parse %s", path))
	}
	if len(rules.Properties) == 0 {
		return DefaultRules(), nil
	}
	return rules, nil
}

// Result lists the files the cleanup changed (or would change, on a dry
// run), as paths relative to the cleaned directory.
type Result struct {
	Changed []string
}

// Run cleans every .content.xml below dir. With dryRun the files are only
// inspected.
func Run(fsys afero.Fs, dir string, rules Rules, dryRun bool) (*Result, error) {
	strippers, err := compileStrippers(rules)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	err = afero.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).
				Warn("Failed to read entry during cleanup.")
			return nil
		}
		if info.IsDir() || info.Name() != ContentFileName {
			return nil
		}

		contents, err := afero.ReadFile(fsys, path)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("read %s", path))
		}

		cleaned := strip(string(contents), strippers)
		if cleaned == string(contents) {
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		result.Changed = append(result.Changed, filepath.ToSlash(rel))

		if dryRun {
			return nil
		}
		mode := info.Mode().Perm()
		if err := afero.WriteFile(fsys, path, []byte(cleaned), mode); err != nil {
			return errors.WithContext(err, fmt.Sprintf("write %s", path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// compileStrippers builds one attribute-removal pattern per property. The
// serialization escapes quotes inside values, so a value never contains a
// literal double quote.
func compileStrippers(rules Rules) ([]*regexp.Regexp, error) {
	var strippers []*regexp.Regexp
	for _, property := range rules.Properties {
		pattern := `\s+` + regexp.QuoteMeta(property) + `="[^"]*"`
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.WithContext(err,
				fmt.Sprintf("bad property name %q", property))
		}
		strippers = append(strippers, compiled)
	}
	return strippers, nil
}

func strip(contents string, strippers []*regexp.Regexp) string {
	for _, stripper := range strippers {
		contents = stripper.ReplaceAllString(contents, "")
	}
	// Dropping the first attribute of a line can leave trailing blanks.
	var lines []string
	for _, line := range strings.Split(contents, "\n") {
		if strings.TrimSpace(line) == "" && line != "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
