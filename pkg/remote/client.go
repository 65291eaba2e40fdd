// Package remote talks to the repository server: the tree listing endpoint
// used for snapshots, and the package manager service used to move content.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
)

const (
	listServletPath = "/bin/repo/list.json"
	packageRoot     = "/etc/packages/" + config.PackageGroup
)

// Client is a repository server client. All calls authenticate with the
// checkout's credentials and classify failures so callers can tell a
// retryable outage from a rejected request.
type Client struct {
	server   string
	user     string
	password string
	http     *http.Client
	clock    clockwork.Clock
}

// NewClient builds a client from a checkout configuration.
func NewClient(cfg config.Config) *Client {
	return &Client{
		server:   strings.TrimSuffix(cfg.Server, "/"),
		user:     cfg.User(),
		password: cfg.Password(),
		http:     &http.Client{Timeout: 60 * time.Second},
		clock:    clockwork.NewRealClock(),
	}
}

// packmgrResponse is the JSON envelope of every package manager call.
type packmgrResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

// PackagePath returns the repository path of a sync package.
func PackagePath(name string) string {
	return packageRoot + "/" + name + ".zip"
}

// UploadPackage uploads a package zip. The package is only stored, not
// installed.
func (c *Client) UploadPackage(ctx context.Context, name string, contents io.Reader) error {
	// Multipart bodies aren't replayable, so buffer the zip once and
	// rebuild the body on each retry attempt.
	zipContents, err := io.ReadAll(contents)
	if err != nil {
		return errors.WithContext(err, "read package")
	}

	endpoint := c.server + config.PackageManagerPath
	return c.withRetry(ctx, "upload package", func() error {
		var body strings.Builder
		writer := multipart.NewWriter(&body)

		if err := writer.WriteField("force", "true"); err != nil {
			return errors.WithContext(err, "write form field")
		}
		part, err := writer.CreateFormFile("file", name+".zip")
		if err != nil {
			return errors.WithContext(err, "create form file")
		}
		if _, err := part.Write(zipContents); err != nil {
			return errors.WithContext(err, "write form file")
		}
		if err := writer.Close(); err != nil {
			return errors.WithContext(err, "finish form")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(body.String()))
		if err != nil {
			return errors.WithContext(err, "build request")
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		return c.doPackmgr(req)
	})
}

// BuildPackage asks the server to (re)build a package's zip from the
// repository content selected by its filter.
func (c *Client) BuildPackage(ctx context.Context, name string) error {
	return c.packageCommand(ctx, name, "build")
}

// InstallPackage installs an uploaded package, applying its content to the
// repository.
func (c *Client) InstallPackage(ctx context.Context, name string) error {
	return c.packageCommand(ctx, name, "install")
}

// DeletePackage removes a package from the server. Deletion is cleanup
// after a transfer, so a missing package is not an error.
func (c *Client) DeletePackage(ctx context.Context, name string) error {
	err := c.packageCommand(ctx, name, "delete")
	if _, ok := errors.RootCause(err).(errors.NotFoundError); ok {
		log.WithField("package", name).Debug("Package already gone, nothing to delete")
		return nil
	}
	return err
}

func (c *Client) packageCommand(ctx context.Context, name, cmd string) error {
	endpoint := c.server + config.PackageManagerPath + PackagePath(name) +
		"?cmd=" + cmd
	return c.withRetry(ctx, cmd+" package", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return errors.WithContext(err, "build request")
		}
		return c.doPackmgr(req)
	})
}

// DownloadPackage fetches a built package's zip contents.
func (c *Client) DownloadPackage(ctx context.Context, name string) ([]byte, error) {
	endpoint := c.server + PackagePath(name)

	var zipContents []byte
	err := c.withRetry(ctx, "download package", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.WithContext(err, "build request")
		}

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		zipContents, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.TransientError{Endpoint: endpoint, Err: err}
		}
		return nil
	})
	return zipContents, err
}

// doPackmgr runs a package manager request and checks both the HTTP status
// and the JSON envelope's success flag.
func (c *Client) doPackmgr(req *http.Request) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed packmgrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return errors.WithContext(err, "parse package manager response")
	}
	if !parsed.Success {
		return errors.New(fmt.Sprintf("package manager: %s", parsed.Msg))
	}
	return nil
}

// do sends the request with authentication and maps the response status to
// the error taxonomy. A non-nil response always has status 200.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.user, c.password)

	endpoint := req.URL.String()
	resp, err := c.http.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok {
			err = urlErr.Err
		}
		return nil, errors.TransientError{Endpoint: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, errors.AuthError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.NotFoundError{Endpoint: endpoint}
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, errors.TransientError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("server returned %s", resp.Status),
		}
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, errors.New(fmt.Sprintf(
			"unexpected response %s from %s", resp.Status, endpoint))
	}
	return resp, nil
}
