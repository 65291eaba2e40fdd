// Package pack builds and unpacks the content package zips that move
// repository content over the package manager. A package carries vault
// metadata (the filter listing the affected subtrees, and the package
// properties) plus the content payload under jcr_root/.
package pack

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
)

const (
	filterEntryName     = "META-INF/vault/filter.xml"
	propertiesEntryName = "META-INF/vault/properties.xml"
	payloadPrefix       = jcr.RootDirName + "/"
)

// Package describes a sync package before it's rendered to a zip. Filters
// are repository paths; installing the package replaces each filtered
// subtree with the payload below it, so a filter root with no payload
// deletes that subtree.
type Package struct {
	Name    string
	Filters []string
}

// BuildFromCheckout renders the package to a zip, reading the payload for
// each of contentPaths from the local checkout. Filters without a matching
// content path contribute no payload and act as deletions on install.
func BuildFromCheckout(fsys afero.Fs, checkoutRoot string, pkg Package,
	contentPaths []string) ([]byte, error) {

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	if err := writeEntry(writer, filterEntryName, filterXML(pkg.Filters)); err != nil {
		return nil, err
	}
	if err := writeEntry(writer, propertiesEntryName, propertiesXML(pkg.Name)); err != nil {
		return nil, err
	}

	for _, repoPath := range contentPaths {
		if err := addPayload(writer, fsys, checkoutRoot, repoPath); err != nil {
			return nil, errors.WithContext(err,
				fmt.Sprintf("add content for %s", repoPath))
		}
	}

	if err := writer.Close(); err != nil {
		return nil, errors.WithContext(err, "finish package zip")
	}
	return buf.Bytes(), nil
}

// addPayload copies the checkout content at repoPath into the zip, using
// the filesystem (mangled) names the vault format expects.
func addPayload(writer *zip.Writer, fsys afero.Fs, checkoutRoot, repoPath string) error {
	mangled := jcr.ManglePath(repoPath)
	fsRoot := filepath.Join(checkoutRoot, filepath.FromSlash(mangled))

	return afero.Walk(fsys, fsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(checkoutRoot, path)
		if err != nil {
			return err
		}
		entryName := payloadPrefix + filepath.ToSlash(rel)

		if info.IsDir() {
			// Keep empty directories: a directory node with no files is
			// still content.
			_, err := writer.Create(entryName + "/")
			return err
		}

		entry, err := writer.Create(entryName)
		if err != nil {
			return err
		}
		f, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
}

// Unpack extracts the jcr_root payload of a package zip into destDir.
// Metadata entries are skipped; entry names keep their filesystem form.
func Unpack(fsys afero.Fs, zipContents []byte, destDir string) error {
	reader, err := zip.NewReader(bytes.NewReader(zipContents), int64(len(zipContents)))
	if err != nil {
		return errors.WithContext(err, "open package zip")
	}

	for _, entry := range reader.File {
		if !strings.HasPrefix(entry.Name, payloadPrefix) {
			continue
		}
		rel := strings.TrimPrefix(entry.Name, payloadPrefix)
		if rel == "" || containsDotDot(rel) {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(rel))

		if strings.HasSuffix(entry.Name, "/") {
			if err := fsys.MkdirAll(target, 0755); err != nil {
				return errors.WithContext(err, "create directory")
			}
			continue
		}

		if err := extractFile(fsys, entry, target); err != nil {
			return errors.WithContext(err,
				fmt.Sprintf("extract %s", entry.Name))
		}
	}
	return nil
}

func extractFile(fsys afero.Fs, entry *zip.File, target string) error {
	if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fsys.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func containsDotDot(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// filterXML renders the vault workspace filter with one root per affected
// repository path.
func filterXML(filters []string) string {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<workspaceFilter version="1.0">` + "\n")
	for _, filter := range filters {
		buf.WriteString(`    <filter root="`)
		xml.EscapeText(&buf, []byte(filter))
		buf.WriteString(`"/>` + "\n")
	}
	buf.WriteString("</workspaceFilter>\n")
	return buf.String()
}

// propertiesXML renders the java-properties package descriptor. The group
// keeps sync packages in their own namespace on the server.
func propertiesXML(name string) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n")
	buf.WriteString(`<!DOCTYPE properties SYSTEM "http://java.sun.com/dtd/properties.dtd">` + "\n")
	buf.WriteString("<properties>\n")
	writeProperty(&buf, "name", name)
	writeProperty(&buf, "group", config.PackageGroup)
	writeProperty(&buf, "version", "")
	buf.WriteString("</properties>\n")
	return buf.String()
}

func writeProperty(buf *bytes.Buffer, key, value string) {
	buf.WriteString(`<entry key="` + key + `">`)
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</entry>\n")
}

func writeEntry(writer *zip.Writer, name, contents string) error {
	entry, err := writer.Create(name)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("create %s", name))
	}
	if _, err := entry.Write([]byte(contents)); err != nil {
		return errors.WithContext(err, fmt.Sprintf("write %s", name))
	}
	return nil
}
