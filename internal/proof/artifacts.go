// artifacts.go - Circuit artifact fetching over HTTP and from a local directory.

package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// MaxArtifactSize bounds a fetched program or verifying key.
const MaxArtifactSize = 64 << 20

// ArtifactSource resolves a Circuit to its program and raw verifying key.
type ArtifactSource interface {
	Fetch(ctx context.Context, c Circuit) (*Program, []byte, error)
}

// HTTPArtifacts fetches artifacts over http(s). file:// URLs are read from
// disk only when they resolve inside LocalDir; an empty LocalDir refuses them.
type HTTPArtifacts struct {
	Client   *http.Client
	LocalDir string
}

// NewHTTPArtifacts returns a fetcher whose requests time out after timeout.
func NewHTTPArtifacts(timeout time.Duration, localDir string) *HTTPArtifacts {
	return &HTTPArtifacts{Client: &http.Client{Timeout: timeout}, LocalDir: localDir}
}

// Fetch downloads the program and the verifying key concurrently.
func (a *HTTPArtifacts) Fetch(ctx context.Context, c Circuit) (*Program, []byte, error) {
	var (
		rawProgram []byte
		vk         []byte
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rawProgram, err = a.get(ctx, c.JSONURL)
		return err
	})
	g.Go(func() (err error) {
		vk, err = a.get(ctx, c.VKURL)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var prog Program
	if err := json.Unmarshal(rawProgram, &prog); err != nil {
		return nil, nil, fmt.Errorf("artifact %s is not a program descriptor", c.JSONURL)
	}
	return &prog, vk, nil
}

func (a *HTTPArtifacts) get(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "file":
		path, err := a.localPath(u)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, MaxArtifactSize))
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported artifact url %q", raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", raw, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize))
}

// localPath resolves a file:// URL and checks it stays inside LocalDir after
// symlinks are followed.
func (a *HTTPArtifacts) localPath(u *url.URL) (string, error) {
	if a.LocalDir == "" {
		return "", fmt.Errorf("file artifacts are disabled")
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file artifact url must be absolute, got host %q", u.Host)
	}
	root, err := filepath.Abs(a.LocalDir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	path, err := filepath.EvalSymlinks(filepath.Clean(u.Path))
	if err != nil {
		return "", fmt.Errorf("artifact %s not found", u.Path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %s is outside the artifact directory", u.Path)
	}
	return path, nil
}
