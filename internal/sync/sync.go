// Package sync moves dump scripts between the local store and a remote
// WebDAV path. The model is last-writer-wins whole-database overwrite: pull
// replaces local state entirely, so callers must confirm before invoking it.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knowcards/knowcards/internal/dump"
	"github.com/knowcards/knowcards/internal/storage"
	"github.com/knowcards/knowcards/internal/webdav"
)

// dumpContentType is the content type the dump script is uploaded with.
const dumpContentType = "text/plain"

// Coordinator orchestrates export/import across a remote blob transport.
// The store lock is held only while exporting or importing locally, never
// while the network transfer is in flight.
type Coordinator struct {
	store  *storage.Store
	client *webdav.Client
}

// NewCoordinator creates a coordinator over the given store and transport.
func NewCoordinator(store *storage.Store, client *webdav.Client) *Coordinator {
	return &Coordinator{store: store, client: client}
}

// Push exports the store and uploads the script to the remote path.
func (c *Coordinator) Push(ctx context.Context, remotePath string) error {
	remotePath = normalizePath(remotePath)

	script, err := dump.Export(c.store)
	if err != nil {
		return fmt.Errorf("failed to export store: %w", err)
	}

	if err := c.client.Put(ctx, remotePath, script, dumpContentType); err != nil {
		return err
	}

	slog.Info("store pushed to remote", slog.String("path", remotePath), slog.Int("bytes", len(script)))
	return nil
}

// Pull downloads the script at the remote path and replaces the local store
// with it. Destructive: local state that is not on the remote is lost.
func (c *Coordinator) Pull(ctx context.Context, remotePath string) (*dump.Result, error) {
	remotePath = normalizePath(remotePath)

	script, err := c.client.Get(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	res, err := dump.Import(c.store, script)
	if err != nil {
		return nil, err
	}

	slog.Info("store pulled from remote", slog.String("path", remotePath), slog.Int64("changes", res.Changes))
	return res, nil
}

// normalizePath makes sure the remote path is rooted and carries the .sql
// suffix the dump scripts are stored under.
func normalizePath(remotePath string) string {
	if !strings.HasPrefix(remotePath, "/") {
		remotePath = "/" + remotePath
	}
	if !strings.HasSuffix(remotePath, ".sql") {
		remotePath += ".sql"
	}
	return remotePath
}
