package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

func newTestClient(server *httptest.Server) *Client {
	return NewClient(config.Config{
		Server:      server.URL,
		Credentials: "testuser:testpass",
	})
}

func TestListTree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, listServletPath, r.URL.Path)
			assert.Equal(t, "/apps/site", r.URL.Query().Get("path"))

			user, password, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "testuser", user)
			assert.Equal(t, "testpass", password)

			fmt.Fprint(w, `{
				"format": "1.0",
				"tree": {
					"kind": "dir",
					"children": {
						"component.html": {"kind": "file", "fingerprint": "abc"},
						"cq:dialog": {
							"kind": "dir",
							"children": {
								".content.xml": {"kind": "file", "fingerprint": "def"}
							}
						}
					}
				}
			}`)
		}))
	defer server.Close()

	snap, err := newTestClient(server).ListTree(context.Background(), "/apps/site")
	assert.NoError(t, err)

	nodes := snap.Root.Flatten()
	assert.Equal(t, "abc", nodes["component.html"].Fingerprint)
	assert.Equal(t, snapshot.Dir, nodes["cq:dialog"].Kind)
	assert.Equal(t, "def", nodes["cq:dialog/.content.xml"].Fingerprint)

	// Children come back name-ordered, ready for diffing.
	assert.Equal(t, "component.html", snap.Root.Children[0].Name)
	assert.Equal(t, "cq:dialog", snap.Root.Children[1].Name)
}

func TestListTreeNotFoundIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
	defer server.Close()

	_, err := newTestClient(server).ListTree(context.Background(), "/apps/nope")
	assert.Error(t, err)
	_, notFound := errors.RootCause(err).(errors.NotFoundError)
	assert.True(t, notFound)
}

func TestListTreeMissingPathIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			// The servlet's answer for a path with no content.
			fmt.Fprint(w, `{"format": "1.0", "tree": {"kind": "dir"}}`)
		}))
	defer server.Close()

	snap, err := newTestClient(server).ListTree(context.Background(), "/apps/new")
	assert.NoError(t, err)
	assert.Equal(t, snapshot.Dir, snap.Root.Kind)
	assert.Empty(t, snap.Root.Children)
}

func TestListTreeUnsupportedFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"format": "2.0", "tree": {"kind": "dir"}}`)
		}))
	defer server.Close()

	_, err := newTestClient(server).ListTree(context.Background(), "/apps")
	assert.Error(t, err)
	_, friendly := err.(errors.FriendlyError)
	assert.True(t, friendly)
}

func TestUploadPackage(t *testing.T) {
	var uploadedName string
	var uploadedContents []byte
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, config.PackageManagerPath, r.URL.Path)
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "true", r.FormValue("force"))

			file, header, err := r.FormFile("file")
			assert.NoError(t, err)
			uploadedName = header.Filename
			uploadedContents, err = io.ReadAll(file)
			assert.NoError(t, err)

			fmt.Fprint(w, `{"success": true, "msg": "ok"}`)
		}))
	defer server.Close()

	err := newTestClient(server).UploadPackage(context.Background(),
		"sync-123", strings.NewReader("zip bytes"))
	assert.NoError(t, err)
	assert.Equal(t, "sync-123.zip", uploadedName)
	assert.Equal(t, "zip bytes", string(uploadedContents))
}

func TestPackageCommandFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t,
				config.PackageManagerPath+PackagePath("sync-123"), r.URL.Path)
			assert.Equal(t, "install", r.URL.Query().Get("cmd"))
			fmt.Fprint(w, `{"success": false, "msg": "no such package"}`)
		}))
	defer server.Close()

	err := newTestClient(server).InstallPackage(context.Background(), "sync-123")
	assert.EqualError(t, err, "package manager: no such package")
}

func TestDeleteMissingPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
	defer server.Close()

	err := newTestClient(server).DeletePackage(context.Background(), "sync-123")
	assert.NoError(t, err)
}

func TestDownloadPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, PackagePath("sync-123"), r.URL.Path)
			fmt.Fprint(w, "zip bytes")
		}))
	defer server.Close()

	contents, err := newTestClient(server).DownloadPackage(
		context.Background(), "sync-123")
	assert.NoError(t, err)
	assert.Equal(t, "zip bytes", string(contents))
}

func TestRetryRecoversFromOutage(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			attempts++
			// Three transient failures still fit the retry budget.
			if attempts <= 3 {
				http.Error(w, "boom", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"success": true, "msg": "ok"}`)
		}))
	defer server.Close()

	client := newTestClient(server)
	clock := clockwork.NewFakeClock()
	client.clock = clock

	done := make(chan error)
	go func() {
		done <- client.BuildPackage(context.Background(), "sync-123")
	}()
	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
	}

	assert.NoError(t, <-done)
	assert.Equal(t, maxAttempts, attempts)
}

func TestRetryBudgetExhausted(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			attempts++
			http.Error(w, "boom", http.StatusServiceUnavailable)
		}))
	defer server.Close()

	client := newTestClient(server)
	clock := clockwork.NewFakeClock()
	client.clock = clock

	done := make(chan error)
	go func() {
		done <- client.BuildPackage(context.Background(), "sync-123")
	}()
	for i := 0; i < maxAttempts-1; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
	}

	err := <-done
	assert.Error(t, err)
	_, transient := errors.RootCause(err).(errors.TransientError)
	assert.True(t, transient)
	assert.Equal(t, maxAttempts, attempts)
}

func TestAuthFailureNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			attempts++
			http.Error(w, "denied", http.StatusUnauthorized)
		}))
	defer server.Close()

	err := newTestClient(server).BuildPackage(context.Background(), "sync-123")
	assert.Error(t, err)
	_, isAuth := errors.RootCause(err).(errors.AuthError)
	assert.True(t, isAuth)
	assert.Equal(t, 1, attempts)
}
