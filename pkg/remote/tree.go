package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	goversion "github.com/hashicorp/go-version"

	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/snapshot"
)

// supportedListFormats gates the listing payload version. The servlet bumps
// the major version on incompatible changes, so refuse anything outside 1.x
// rather than misread it.
var supportedListFormats = goversion.MustConstraints(
	goversion.NewConstraint(">= 1.0, < 2.0"))

// listResponse is the tree listing servlet's payload.
type listResponse struct {
	Format string    `json:"format"`
	Tree   *listNode `json:"tree"`
}

type listNode struct {
	Kind        string               `json:"kind"`
	Fingerprint string               `json:"fingerprint"`
	Children    map[string]*listNode `json:"children"`
}

// ListTree fetches the remote snapshot of the subtree at the given
// repository path. The servlet answers a missing repository path with an
// empty tree, so a 404 here means the servlet itself is absent (or the path
// is malformed) and surfaces as a fatal NotFoundError.
func (c *Client) ListTree(ctx context.Context, repoPath string) (*snapshot.Snapshot, error) {
	parsed, err := c.fetchListing(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	if err := CheckListFormat(parsed.Format); err != nil {
		return nil, err
	}
	if parsed.Tree == nil {
		return nil, errors.New("listing has no tree")
	}

	root, err := buildTree("", "", parsed.Tree)
	if err != nil {
		return nil, err
	}
	root.SortChildren()
	return &snapshot.Snapshot{Root: root}, nil
}

// ServerFormat fetches the listing format version the server speaks,
// without requiring it to be one this build supports.
func (c *Client) ServerFormat(ctx context.Context) (string, error) {
	parsed, err := c.fetchListing(ctx, "/")
	if err != nil {
		return "", err
	}
	return parsed.Format, nil
}

func (c *Client) fetchListing(ctx context.Context, repoPath string) (listResponse, error) {
	endpoint := c.server + listServletPath + "?path=" + url.QueryEscape(repoPath)

	var parsed listResponse
	err := c.withRetry(ctx, "list tree", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.WithContext(err, "build request")
		}

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		parsed = listResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return errors.WithContext(err, "parse listing")
		}
		return nil
	})
	return parsed, err
}

// CheckListFormat reports whether this build understands listings in the
// given format version.
func CheckListFormat(format string) error {
	parsed, err := goversion.NewVersion(format)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("parse listing format %q", format))
	}
	if !supportedListFormats.Check(parsed) {
		return errors.NewFriendlyError(
			"The server returned tree listings in format %s, but this build only "+
				"understands format 1.x.\nUpgrade the client or the server-side "+
				"listing servlet so the versions match.", format)
	}
	return nil
}

func buildTree(name, path string, raw *listNode) (*snapshot.Node, error) {
	node := &snapshot.Node{Name: name, Path: path}
	switch raw.Kind {
	case "file":
		node.Kind = snapshot.File
		node.Fingerprint = raw.Fingerprint
	case "dir":
		node.Kind = snapshot.Dir
	default:
		return nil, errors.New(fmt.Sprintf(
			"listing entry %q has unknown kind %q", path, raw.Kind))
	}

	for childName, rawChild := range raw.Children {
		childPath := childName
		if path != "" {
			childPath = path + "/" + childName
		}
		child, err := buildTree(childName, childPath, rawChild)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
