package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/index"
	"github.com/starford/tether/internal/storage"
)

// Runtime bundles the vault store, its index and the companion service.
type Runtime struct {
	Store      *storage.FS
	DB         *index.DB
	Companions *companion.Service
}

// Open prepares the vault, opens and syncs the index and builds the
// companion service.
func Open(cfg *Config, logger *slog.Logger, opts ...companion.Option) (*Runtime, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path, storage.WithTrashDir(cfg.Companion.TrashFolder))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// The service reveals a dot-named notes folder to the store, so it must
	// exist before the first sync walks the vault.
	opts = append([]companion.Option{companion.WithLogger(logger)}, opts...)
	svc := companion.NewService(store, db, cfg.Companion.Settings(), opts...)

	if res, err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("index synced", slog.Int("indexed", res.Indexed), slog.Int("removed", res.Removed))
	}

	return &Runtime{Store: store, DB: db, Companions: svc}, nil
}

// Close releases the index.
func (r *Runtime) Close() error {
	return r.DB.Close()
}

// NewLogger builds the JSON logger used across the application.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
