package transfer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/pack"
	"github.com/aemtools/aemcli/pkg/remote"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

// fakeRepo fakes the tree listing servlet and the package manager.
type fakeRepo struct {
	listing   string
	download  []byte
	uploaded  map[string][]byte
	commands  []string
	installed int
	listCalls int
}

func newFakeRepo(listing string) *fakeRepo {
	return &fakeRepo{listing: listing, uploaded: map[string][]byte{}}
}

func (f *fakeRepo) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/bin/repo/list.json":
			f.listCalls++
			fmt.Fprint(w, f.listing)

		case r.URL.Path == config.PackageManagerPath:
			r.ParseMultipartForm(1 << 20)
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			contents, _ := io.ReadAll(file)
			f.uploaded[header.Filename] = contents
			fmt.Fprint(w, `{"success": true, "msg": "uploaded"}`)

		case strings.HasPrefix(r.URL.Path, config.PackageManagerPath+"/"):
			cmd := r.URL.Query().Get("cmd")
			f.commands = append(f.commands, cmd)
			if cmd == "install" {
				f.installed++
			}
			fmt.Fprint(w, `{"success": true, "msg": "done"}`)

		case strings.HasPrefix(r.URL.Path, "/etc/packages/"):
			w.Write(f.download)

		default:
			http.NotFound(w, r)
		}
	})
}

func newTestScope(t *testing.T, server *httptest.Server) *Scope {
	t.Helper()
	cfg := config.Config{Server: server.URL, Credentials: "admin:admin"}
	ignore, err := config.NewIgnoreRuleSet(nil)
	assert.NoError(t, err)
	return &Scope{
		Config:       cfg,
		CheckoutRoot: "/work/jcr_root",
		RepoPath:     "/apps/site",
		LocalPath:    "/work/jcr_root/apps/site",
		Ignore:       ignore,
		Client:       remote.NewClient(cfg),
	}
}

func listing(entries string) string {
	return fmt.Sprintf(`{"format": "1.0", "tree": {"kind": "dir", "children": {%s}}}`,
		entries)
}

func fileEntry(name, contents string) string {
	return fmt.Sprintf(`%q: {"kind": "file", "fingerprint": %q}`,
		name, snapshot.HashBytes([]byte(contents)))
}

func zipEntries(t *testing.T, contents []byte) map[string]string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(contents), int64(len(contents)))
	assert.NoError(t, err)

	entries := map[string]string{}
	for _, entry := range reader.File {
		f, err := entry.Open()
		assert.NoError(t, err)
		data, err := io.ReadAll(f)
		assert.NoError(t, err)
		f.Close()
		entries[entry.Name] = string(data)
	}
	return entries
}

func TestPut(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/changed.html", []byte("new"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/added.html", []byte("fresh"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/same.html", []byte("same"), 0644))

	repo := newFakeRepo(listing(strings.Join([]string{
		fileEntry("changed.html", "old"),
		fileEntry("same.html", "same"),
		fileEntry("gone.html", "deleted locally"),
	}, ", ")))
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	report, err := newTestScope(t, server).Put(context.Background())
	assert.NoError(t, err)

	byPath := map[string]snapshot.Classification{}
	for _, entry := range report.Entries {
		byPath[entry.Path] = entry.Classification
	}
	assert.Equal(t, snapshot.Modified, byPath["/apps/site/changed.html"])
	assert.Equal(t, snapshot.AddedLocal, byPath["/apps/site/added.html"])
	assert.Equal(t, snapshot.DeletedLocal, byPath["/apps/site/gone.html"])
	assert.NotContains(t, byPath, "/apps/site/same.html")

	entries := zipEntries(t, repo.uploaded["test-pkg.zip"])
	filter := entries["META-INF/vault/filter.xml"]
	assert.Contains(t, filter, `<filter root="/apps/site/changed.html"/>`)
	assert.Contains(t, filter, `<filter root="/apps/site/added.html"/>`)
	assert.Contains(t, filter, `<filter root="/apps/site/gone.html"/>`)
	assert.NotContains(t, filter, "same.html")

	assert.Equal(t, "new", entries["jcr_root/apps/site/changed.html"])
	assert.Equal(t, "fresh", entries["jcr_root/apps/site/added.html"])
	assert.NotContains(t, entries, "jcr_root/apps/site/gone.html")
	assert.NotContains(t, entries, "jcr_root/apps/site/same.html")

	assert.Equal(t, []string{"install", "delete"}, repo.commands)
}

func TestPutNothingToDo(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/same.html", []byte("same"), 0644))

	repo := newFakeRepo(listing(fileEntry("same.html", "same")))
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	report, err := newTestScope(t, server).Put(context.Background())
	assert.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Empty(t, repo.uploaded)
	assert.Empty(t, repo.commands)
}

func TestPutConflictFailsClosed(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	// Local directory, remote file with the same name.
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/thing/nested.html", []byte("x"), 0644))

	repo := newFakeRepo(listing(fileEntry("thing", "i am a file")))
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	_, err := newTestScope(t, server).Put(context.Background())
	conflict, ok := errors.RootCause(err).(errors.ConflictError)
	if assert.True(t, ok) {
		assert.Equal(t, []string{"/apps/site/thing"}, conflict.Paths)
	}
	assert.Empty(t, repo.uploaded)
}

func TestPutForceSkipsConflicts(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/thing/nested.html", []byte("x"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/changed.html", []byte("new"), 0644))

	repo := newFakeRepo(listing(strings.Join([]string{
		fileEntry("thing", "i am a file"),
		fileEntry("changed.html", "old"),
	}, ", ")))
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	scope := newTestScope(t, server)
	scope.Config.Force = true

	_, err := scope.Put(context.Background())
	assert.NoError(t, err)

	filter := zipEntries(t, repo.uploaded["test-pkg.zip"])["META-INF/vault/filter.xml"]
	assert.Contains(t, filter, `<filter root="/apps/site/changed.html"/>`)
	assert.NotContains(t, filter, "thing")

	// The skip isn't silent.
	var warned []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel {
			warned = append(warned, fmt.Sprint(entry.Data["path"]))
		}
	}
	assert.Contains(t, warned, "/apps/site/thing")
}

// remoteZip builds the package zip the fake server hands out on download.
func remoteZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	remoteFs := afero.NewMemMapFs()
	for path, contents := range files {
		assert.NoError(t, afero.WriteFile(remoteFs,
			"/remote/jcr_root"+path, []byte(contents), 0644))
	}
	contents, err := pack.BuildFromCheckout(remoteFs, "/remote/jcr_root",
		pack.Package{Name: "test-pkg", Filters: []string{"/apps/site"}},
		[]string{"/apps/site"})
	assert.NoError(t, err)
	return contents
}

func TestGet(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/changed.html", []byte("old"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/local-only.html", []byte("mine"), 0644))

	repo := newFakeRepo(listing(strings.Join([]string{
		fileEntry("changed.html", "new"),
		fileEntry("remote-only.html", "fresh"),
	}, ", ")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/changed.html":     "new",
		"/apps/site/remote-only.html": "fresh",
	})
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	report, err := newTestScope(t, server).Get(context.Background(), GetOptions{})
	assert.NoError(t, err)

	byPath := map[string]snapshot.Classification{}
	for _, entry := range report.Entries {
		byPath[entry.Path] = entry.Classification
	}
	assert.Equal(t, snapshot.Modified, byPath["/apps/site/changed.html"])
	assert.Equal(t, snapshot.AddedRemote, byPath["/apps/site/remote-only.html"])
	assert.Equal(t, snapshot.DeletedRemote, byPath["/apps/site/local-only.html"])

	changed, err := afero.ReadFile(fs, "/work/jcr_root/apps/site/changed.html")
	assert.NoError(t, err)
	assert.Equal(t, "new", string(changed))

	added, err := afero.ReadFile(fs, "/work/jcr_root/apps/site/remote-only.html")
	assert.NoError(t, err)
	assert.Equal(t, "fresh", string(added))

	// Deletions weren't approved, so the local-only file survives.
	mine, err := afero.ReadFile(fs, "/work/jcr_root/apps/site/local-only.html")
	assert.NoError(t, err)
	assert.Equal(t, "mine", string(mine))

	// Staging and backup trees are gone after the swap.
	staged, err := afero.Exists(fs, "/work/jcr_root/apps/site.staging")
	assert.NoError(t, err)
	assert.False(t, staged)
	old, err := afero.Exists(fs, "/work/jcr_root/apps/site.old")
	assert.NoError(t, err)
	assert.False(t, old)

	assert.Equal(t, []string{"build", "delete"}, repo.commands)
}

func TestGetAppliesDeletions(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/keep.html", []byte("same"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/local-only.html", []byte("mine"), 0644))

	repo := newFakeRepo(listing(fileEntry("keep.html", "same")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/keep.html": "same",
	})
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	_, err := newTestScope(t, server).Get(context.Background(),
		GetOptions{ApplyDeletions: true})
	assert.NoError(t, err)

	gone, err := afero.Exists(fs, "/work/jcr_root/apps/site/local-only.html")
	assert.NoError(t, err)
	assert.False(t, gone)

	kept, err := afero.Exists(fs, "/work/jcr_root/apps/site/keep.html")
	assert.NoError(t, err)
	assert.True(t, kept)
}

func TestGetPreservesIgnoredFiles(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/changed.html", []byte("old"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/.DS_Store", []byte("junk"), 0644))

	repo := newFakeRepo(listing(fileEntry("changed.html", "new")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/changed.html": "new",
	})
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	scope := newTestScope(t, server)
	defaults, err := config.LoadIgnoreRules(fs, scope.CheckoutRoot)
	assert.NoError(t, err)
	scope.Ignore = defaults

	_, err = scope.Get(context.Background(), GetOptions{ApplyDeletions: true})
	assert.NoError(t, err)

	junk, err := afero.ReadFile(fs, "/work/jcr_root/apps/site/.DS_Store")
	assert.NoError(t, err)
	assert.Equal(t, "junk", string(junk))
}

func TestContentDiff(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/changed.html",
		[]byte("shared line\nlocal line\n"), 0644))
	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/logo.png", []byte("local\x00bytes"), 0644))

	repo := newFakeRepo(listing(strings.Join([]string{
		fileEntry("changed.html", "shared line\nserver line\n"),
		fileEntry("logo.png", "server\x00bytes"),
	}, ", ")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/changed.html": "shared line\nserver line\n",
		"/apps/site/logo.png":     "server\x00bytes",
	})
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	var out bytes.Buffer
	err := newTestScope(t, server).ContentDiff(context.Background(),
		Push, &out)
	assert.NoError(t, err)

	rendered := out.String()
	assert.Contains(t, rendered, "--- /apps/site/changed.html (server)")
	assert.Contains(t, rendered, "+++ /apps/site/changed.html (local)")
	assert.Contains(t, rendered, "+local line")
	assert.Contains(t, rendered, "-server line")
	assert.Contains(t, rendered, " shared line")
	assert.Contains(t, rendered, "(binary files differ)")
	assert.NotContains(t, rendered, "local\x00bytes")
}

func TestGetReusesPrebuiltPlan(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	assert.NoError(t, afero.WriteFile(fs,
		"/work/jcr_root/apps/site/changed.html", []byte("old"), 0644))

	repo := newFakeRepo(listing(fileEntry("changed.html", "new")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/changed.html": "new",
	})
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	scope := newTestScope(t, server)
	plan, err := scope.BuildPlan(context.Background())
	assert.NoError(t, err)

	_, err = scope.Get(context.Background(), GetOptions{Plan: plan})
	assert.NoError(t, err)

	// The pull applied the plan it was handed instead of listing again.
	assert.Equal(t, 1, repo.listCalls)
	changed, err := afero.ReadFile(fs, "/work/jcr_root/apps/site/changed.html")
	assert.NoError(t, err)
	assert.Equal(t, "new", string(changed))
}

func TestCheckoutFailureLeavesNoConfig(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	broken := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer broken.Close()

	cfg := config.Config{Server: broken.URL, Credentials: "admin:admin"}
	_, _, err := Checkout(context.Background(), cfg, "/checkout", "/apps/site")
	assert.Error(t, err)

	exists, err := afero.Exists(fs, "/checkout/.repo")
	assert.NoError(t, err)
	assert.False(t, exists)

	// The failed attempt must not block a retry.
	repo := newFakeRepo(listing(fileEntry("page.html", "<html/>")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/page.html": "<html/>",
	})
	good := httptest.NewServer(repo.handler())
	defer good.Close()

	cfg.Server = good.URL
	_, _, err = Checkout(context.Background(), cfg, "/checkout", "/apps/site")
	assert.NoError(t, err)

	written, err := afero.ReadFile(fs, "/checkout/.repo")
	assert.NoError(t, err)
	assert.Contains(t, string(written), "server="+good.URL)
}

func TestStatusAfterCheckoutIsClean(t *testing.T) {
	fs = afero.NewMemMapFs()
	packageName = func() string { return "test-pkg" }

	repo := newFakeRepo(listing(strings.Join([]string{
		fileEntry("page.html", "<html/>"),
		fileEntry(".content.xml", "<root/>"),
	}, ", ")))
	repo.download = remoteZip(t, map[string]string{
		"/apps/site/page.html":    "<html/>",
		"/apps/site/.content.xml": "<root/>",
	})
	server := httptest.NewServer(repo.handler())
	defer server.Close()

	cfg := config.Config{Server: server.URL, Credentials: "admin:admin"}
	scope, _, err := Checkout(context.Background(), cfg, "/checkout", "/apps/site")
	assert.NoError(t, err)
	scope.Client = remote.NewClient(cfg)

	written, err := afero.ReadFile(fs, "/checkout/.repo")
	assert.NoError(t, err)
	assert.Contains(t, string(written), "server="+server.URL)

	plan, err := scope.BuildPlan(context.Background())
	assert.NoError(t, err)
	assert.True(t, scope.Report(plan, Push).Empty())
}
