// Package webdav is a minimal path-addressed blob client for WebDAV-style
// remote stores: PUT content at a path, GET content from a path.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/knowcards/knowcards/internal/apperr"
)

// DefaultTimeout bounds every remote request unless overridden.
const DefaultTimeout = 60 * time.Second

// Client talks to one WebDAV server. The auth token is an opaque,
// pre-encoded Basic credential; it is configuration, not generated here.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// New creates a client for the given base URL. A timeout <= 0 falls back to
// DefaultTimeout.
func New(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

// Put uploads content to the remote path, creating the parent collection
// first. No retries; the caller decides whether to try again.
func (c *Client) Put(ctx context.Context, remotePath, content, contentType string) error {
	if err := c.ensureDir(ctx, remotePath); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(remotePath), strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.authToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(resp.StatusCode)
	}
	slog.Info("uploaded to remote", slog.String("path", remotePath), slog.Int("status", resp.StatusCode))
	return nil
}

// Get downloads the content at the remote path.
func (c *Client) Get(ctx context.Context, remotePath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(remotePath), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusErr(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportErr(err)
	}
	slog.Info("downloaded from remote", slog.String("path", remotePath), slog.Int("bytes", len(body)))
	return string(body), nil
}

// ensureDir creates the parent collection of the remote path by PUTting a
// marker object. A 409 means the collection already exists; an outright
// failure here is logged but not fatal, since the upload itself may still
// succeed on servers that create collections implicitly.
func (c *Client) ensureDir(ctx context.Context, remotePath string) error {
	idx := strings.LastIndex(remotePath, "/")
	if idx <= 0 {
		return nil
	}
	dirPath := remotePath[:idx]

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(dirPath+"/.dir"), strings.NewReader(""))
	if err != nil {
		return fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.authToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("could not create remote directory, trying upload anyway",
			slog.String("dir", dirPath), slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if (resp.StatusCode < 200 || resp.StatusCode >= 300) && resp.StatusCode != http.StatusConflict {
		slog.Warn("could not create remote directory, trying upload anyway",
			slog.String("dir", dirPath), slog.Int("status", resp.StatusCode))
	}
	return nil
}

func (c *Client) url(remotePath string) string {
	return c.baseURL + "/" + strings.TrimPrefix(remotePath, "/")
}

// statusErr maps a non-2xx response to the error taxonomy, keeping the raw
// status code available for diagnostics.
func statusErr(status int) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("remote path: %w", apperr.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("status %d: %w", status, apperr.ErrAuthFailed)
	default:
		return &apperr.TransportError{Status: status}
	}
}

// transportErr distinguishes timeouts from other connection failures.
func transportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}
	return fmt.Errorf("remote request failed: %w", err)
}
