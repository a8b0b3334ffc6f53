package commands

import (
	"fmt"

	"github.com/filekv/filekv/internal/logger"
	"github.com/filekv/filekv/pkg/config"
	"github.com/filekv/filekv/pkg/metrics"
	"github.com/filekv/filekv/pkg/storage/fs"
)

// loadConfig loads the configuration, applies the --dir override, and
// initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if storageDir != "" {
		cfg.Storage.Dir = storageDir
	}
	if cfg.Storage.Dir == "" {
		return nil, fmt.Errorf("no storage directory configured: set storage.dir or pass --dir")
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openStore opens the file store described by the loaded configuration.
func openStore(cfg *config.Config, readOnly bool) (*fs.FileStore, error) {
	var m *metrics.StorageMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.NewStorageMetrics()
	}

	onClose := fs.DoNothing
	if cfg.Storage.OnClose == config.OnCloseDeleteAll {
		onClose = fs.DeleteAll
	}

	return fs.New(fs.Config{
		Dir:         cfg.Storage.Dir,
		ReadOnly:    readOnly || cfg.Storage.ReadOnly,
		FollowLinks: cfg.Storage.FollowLinks,
		KeepMime:    cfg.Storage.KeepMime,
		OnClose:     onClose,
		MaxFileSize: int64(cfg.Storage.MaxFileSize),
		GCPeriod:    cfg.Storage.GCPeriod,
		GraceWindow: cfg.Storage.GraceWindow,
		Watch:       cfg.Storage.Watch,
		Metrics:     m,
	})
}
