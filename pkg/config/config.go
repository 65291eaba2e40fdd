// Package config loads the checkout configuration from `.repo` files and
// the exclusion rules from `.repoignore`.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aemtools/aemcli/pkg/errors"
)

const (
	// FileName is the per-checkout configuration file, searched upwards
	// from the working directory.
	FileName = ".repo"

	// IgnoreFileName holds the exclusion globs, one per line, relative to
	// the jcr_root directory.
	IgnoreFileName = ".repoignore"

	DefaultServer      = "http://localhost:4502"
	DefaultCredentials = "admin:admin"

	// PackageManagerPath is the package manager service endpoint on the
	// server.
	PackageManagerPath = "/crx/packmgr/service/.json"

	// PackageGroup is the package group used for the ephemeral transfer
	// packages.
	PackageGroup = "tmp/repo"
)

// Mocked out for unit testing.
var homedirDir = homedir.Dir

// Config holds the resolved settings for one invocation. It is threaded
// explicitly into the scanner, the fetcher, and the coordinator.
type Config struct {
	Server      string
	Credentials string
	Force       bool
	Quiet       bool
}

// Default returns the configuration used when no .repo file exists.
func Default() Config {
	return Config{
		Server:      DefaultServer,
		Credentials: DefaultCredentials,
	}
}

// User returns the username half of the credentials.
func (cfg Config) User() string {
	user, _ := splitCredentials(cfg.Credentials)
	return user
}

// Password returns the password half of the credentials.
func (cfg Config) Password() string {
	_, password := splitCredentials(cfg.Credentials)
	return password
}

func splitCredentials(credentials string) (string, string) {
	parts := strings.SplitN(credentials, ":", 2)
	if len(parts) != 2 {
		return credentials, ""
	}
	return parts[0], parts[1]
}

// Validate checks the fields that every network command depends on.
func (cfg Config) Validate() error {
	if cfg.Server == "" {
		return errors.ConfigError{Reason: "no server configured"}
	}
	if !strings.HasPrefix(cfg.Server, "http://") &&
		!strings.HasPrefix(cfg.Server, "https://") {
		return errors.ConfigError{Reason: fmt.Sprintf(
			"server %q is not an http(s) URL", cfg.Server)}
	}
	if !strings.Contains(cfg.Credentials, ":") {
		return errors.ConfigError{Reason: "credentials must be in user:password form"}
	}
	return nil
}

// Load resolves the configuration for a command started in startDir. It
// searches startDir and its ancestors for a .repo file (first match wins),
// then falls back to ~/.repo, then to the defaults. The returned path is
// the file that was used, or empty.
func Load(fsys afero.Fs, startDir string) (Config, string, error) {
	cfg := Default()

	path, err := findUp(fsys, startDir, FileName)
	if err != nil {
		return cfg, "", errors.WithContext(err, "search config")
	}

	if path == "" {
		home, err := homedirDir()
		if err == nil {
			candidate := filepath.Join(home, FileName)
			if exists, _ := afero.Exists(fsys, candidate); exists {
				path = candidate
			}
		} else {
			log.WithError(err).Debug("Failed to resolve home directory")
		}
	}

	if path == "" {
		return cfg, "", nil
	}

	if err := parseInto(fsys, &cfg, path); err != nil {
		return cfg, path, errors.WithContext(err, fmt.Sprintf("parse %s", path))
	}
	return cfg, path, nil
}

// Write persists the server and credentials next to the jcr_root directory.
// The file is staged and renamed so that a failure can't leave a partially
// written configuration behind.
func Write(fsys afero.Fs, cfg Config, checkoutRoot string) error {
	dir := filepath.Dir(checkoutRoot)
	path := filepath.Join(dir, FileName)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "server=%s\n", cfg.Server)
	fmt.Fprintf(&buf, "credentials=%s\n", cfg.Credentials)

	staged := path + ".tmp"
	if err := afero.WriteFile(fsys, staged, buf.Bytes(), 0600); err != nil {
		return errors.WithContext(err, "stage config")
	}
	if err := fsys.Rename(staged, path); err != nil {
		// Don't leave the staged file around on failure.
		if rmErr := fsys.Remove(staged); rmErr != nil {
			log.WithError(rmErr).Warn("Failed to remove staged config file")
		}
		return errors.WithContext(err, "commit config")
	}
	return nil
}

func parseInto(fsys afero.Fs, cfg *Config, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		switch strings.TrimSpace(key) {
		case "server":
			cfg.Server = strings.TrimSpace(value)
		case "credentials":
			cfg.Credentials = strings.TrimSpace(value)
		}
	}
	return scanner.Err()
}

// findUp walks from startDir to the filesystem root looking for fileName.
func findUp(fsys afero.Fs, startDir, fileName string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, fileName)
		exists, err := afero.Exists(fsys, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
