package providers

import (
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/store/sqlite"
)

// StoreHandle wraps the Badger cache store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the Badger store backing the issue cache.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Metadata.BasePath, "cache")
	db, err := store.New(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Cache store initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// CatalogHandle wraps the SQLite catalog with shutdown capability.
type CatalogHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *CatalogHandle) Shutdown() error {
	return h.Close()
}

// ProvideCatalog provides the SQLite catalog of libraries, files and series.
func ProvideCatalog(i do.Injector) (*CatalogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Metadata.BasePath, 0o755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(cfg.Metadata.BasePath, "catalog.db")
	db, err := sqlite.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Catalog initialized", "path", dbPath)

	return &CatalogHandle{Store: db}, nil
}
