// Package assets finds digital assets in a checkout that no content
// references anymore, so they can be pruned before a push.
package assets

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
)

// assetMarker identifies a serialized node as an asset.
const assetMarker = `jcr:primaryType="dam:Asset"`

// AssetRoot is where assets live in the repository.
const AssetRoot = "/content/dam"

// referencePattern matches repository references to asset paths anywhere in
// serialized content: fileReference properties, inline HTML, script
// literals.
var referencePattern = regexp.MustCompile(`/content/dam/[^"'\s<>\\]+`)

// folderThumbnailPattern matches the auto-generated folder thumbnail
// property. The server regenerates it at will, so it is dropped before the
// reference scan: a thumbnail is not a real use of an asset.
var folderThumbnailPattern = regexp.MustCompile(`folderThumbnailPaths="[^"]*"`)

// assetExtensions limits the unused scan to common media types. Anything
// more exotic is left alone rather than risking a false positive.
var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".tif": true, ".tiff": true, ".bmp": true,
	".mp4": true, ".mov": true, ".webm": true,
	".pdf": true,
}

// FindUnused returns the repository paths of assets below /content/dam that
// nothing else in the checkout references. Paths come back sorted.
func FindUnused(fsys afero.Fs, checkoutRoot string) ([]string, error) {
	assetPaths, err := findAssets(fsys, checkoutRoot)
	if err != nil {
		return nil, err
	}
	if len(assetPaths) == 0 {
		return nil, nil
	}

	references, err := collectReferences(fsys, checkoutRoot, assetPaths)
	if err != nil {
		return nil, err
	}

	var unused []string
	for _, assetPath := range assetPaths {
		if !referenced(assetPath, references) {
			unused = append(unused, assetPath)
		}
	}
	sort.Strings(unused)
	return unused, nil
}

// Remove deletes the local directories of the given assets. The next push
// propagates the deletions to the server.
func Remove(fsys afero.Fs, checkoutRoot string, assetPaths []string) error {
	for _, assetPath := range assetPaths {
		local := filepath.Join(checkoutRoot,
			filepath.FromSlash(jcr.ManglePath(assetPath)))
		if err := fsys.RemoveAll(local); err != nil {
			return errors.WithContext(err, "remove "+assetPath)
		}
	}
	return nil
}

// findAssets walks /content/dam looking for directories whose .content.xml
// declares a dam:Asset. Asset renditions live below the asset directory, so
// the walk doesn't descend into matches.
func findAssets(fsys afero.Fs, checkoutRoot string) ([]string, error) {
	damDir := filepath.Join(checkoutRoot, "content", "dam")
	exists, err := afero.DirExists(fsys, damDir)
	if err != nil || !exists {
		return nil, err
	}

	var assetPaths []string
	err = afero.Walk(fsys, damDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).
				Warn("Failed to read entry during asset scan.")
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		contents, err := afero.ReadFile(fsys,
			filepath.Join(path, ".content.xml"))
		if err != nil {
			return nil
		}
		if !strings.Contains(string(contents), assetMarker) {
			return nil
		}

		// Renditions live below the asset node either way; only assets
		// with a recognized media extension are candidates for removal.
		if !assetExtensions[strings.ToLower(filepath.Ext(info.Name()))] {
			return filepath.SkipDir
		}

		rel, relErr := filepath.Rel(checkoutRoot, path)
		if relErr != nil {
			return nil
		}
		assetPaths = append(assetPaths, jcr.DemanglePath("/"+filepath.ToSlash(rel)))
		return filepath.SkipDir
	})
	return assetPaths, err
}

// collectReferences scans every file outside the asset subtrees for
// /content/dam references.
func collectReferences(fsys afero.Fs, checkoutRoot string,
	assetPaths []string) (map[string]bool, error) {

	references := map[string]bool{}
	err := afero.Walk(fsys, checkoutRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).
				Warn("Failed to read entry during reference scan.")
			return nil
		}

		rel, relErr := filepath.Rel(checkoutRoot, path)
		if relErr != nil {
			return nil
		}
		repoPath := jcr.DemanglePath("/" + filepath.ToSlash(rel))

		// References inside an asset's own subtree don't keep it alive.
		if info.IsDir() {
			for _, assetPath := range assetPaths {
				if repoPath == assetPath {
					return filepath.SkipDir
				}
			}
			return nil
		}

		contents, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil
		}
		scanned := folderThumbnailPattern.ReplaceAllString(string(contents), "")
		for _, match := range referencePattern.FindAllString(scanned, -1) {
			references[match] = true
		}
		return nil
	})
	return references, err
}

func referenced(assetPath string, references map[string]bool) bool {
	for reference := range references {
		if reference == assetPath ||
			strings.HasPrefix(reference, assetPath+"/") {
			return true
		}
	}
	return false
}
