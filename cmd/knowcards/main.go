package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/knowcards/knowcards/internal/ai"
	"github.com/knowcards/knowcards/internal/config"
	"github.com/knowcards/knowcards/internal/storage"
	"github.com/knowcards/knowcards/internal/sync"
	"github.com/knowcards/knowcards/internal/web"
	"github.com/knowcards/knowcards/internal/webdav"
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	flags := config.Flags()
	push := flags.String("push", "", "Export the store, upload it to the given remote path and exit")
	pull := flags.String("pull", "", "Download the dump at the given remote path, replace the store and exit")
	confirmPull := flags.Bool("yes", false, "Confirm that --pull may overwrite local data")

	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("failed to parse flags", slog.String("error", err.Error()))
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	st, err := storage.Open(cfg.DBPath, storage.WithGroupCap(cfg.GroupCap))
	if err != nil {
		slog.Error("failed to open store", slog.String("db", cfg.DBPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("store opened", slog.String("db", cfg.DBPath))

	var coord *sync.Coordinator
	if cfg.WebDAV.BaseURL != "" {
		client := webdav.New(cfg.WebDAV.BaseURL, cfg.WebDAV.AuthToken,
			time.Duration(cfg.WebDAV.TimeoutSeconds)*time.Second)
		coord = sync.NewCoordinator(st, client)
	}

	if *push != "" || *pull != "" {
		runSyncAndExit(coord, *push, *pull, *confirmPull)
	}

	var generator web.Generator
	if cfg.AI.BaseURL != "" && cfg.AI.APIKey != "" {
		generator = ai.New(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
	}

	server := web.NewServer(st, coord, generator)
	slog.Info("listening", slog.String("addr", cfg.Listen))
	if err := http.ListenAndServe(cfg.Listen, server); err != nil {
		slog.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runSyncAndExit performs a one-shot push or pull and terminates.
func runSyncAndExit(coord *sync.Coordinator, push, pull string, confirmPull bool) {
	if coord == nil {
		slog.Error("sync requires webdav.base_url to be configured")
		os.Exit(1)
	}

	ctx := context.Background()
	if push != "" {
		if err := coord.Push(ctx, push); err != nil {
			slog.Error("push failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("push complete", slog.String("path", push))
		os.Exit(0)
	}

	if !confirmPull {
		slog.Error("--pull overwrites local data; pass --yes to confirm")
		os.Exit(1)
	}
	res, err := coord.Pull(ctx, pull)
	if err != nil {
		slog.Error("pull failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("pull complete", slog.String("path", pull), slog.String("result", res.Message))
	os.Exit(0)
}
