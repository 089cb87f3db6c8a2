package providers

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/metadata"
	"github.com/inkwellapp/inkwell-server/internal/metadata/comicvine"
	"github.com/inkwellapp/inkwell-server/internal/metadata/mangadex"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// MetadataRegistryHandle wraps the source registry with shutdown capability.
type MetadataRegistryHandle struct {
	*metadata.Registry
	comicVine *comicvine.Client
	mangaDex  *mangadex.Client
}

// Shutdown implements do.Shutdownable.
func (h *MetadataRegistryHandle) Shutdown() error {
	if h.comicVine != nil {
		h.comicVine.Close()
	}
	h.mangaDex.Close()
	return nil
}

// ProvideMetadataRegistry provides the federated metadata sources.
// Comic Vine is only registered when an API key is configured.
func ProvideMetadataRegistry(i do.Injector) (*MetadataRegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	h := &MetadataRegistryHandle{
		Registry: metadata.NewRegistry(log.Logger),
	}

	if cfg.ComicVine.APIKey != "" {
		h.comicVine = comicvine.New(comicvine.Config{
			APIKey:  cfg.ComicVine.APIKey,
			BaseURL: cfg.ComicVine.BaseURL,
		}, log.Logger)
		h.Registry.Register(h.comicVine)
	} else {
		log.Warn("Comic Vine API key not set, western series search disabled")
	}

	h.mangaDex = mangadex.New(mangadex.Config{BaseURL: cfg.MangaDex.BaseURL}, log.Logger)
	h.Registry.Register(h.mangaDex)

	log.Info("Metadata sources registered", "sources", len(h.Registry.Sources()))

	return h, nil
}

// ProvideIssueCache provides the Badger-backed issue index cache.
func ProvideIssueCache(i do.Injector) (*store.IssueCache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*MetadataRegistryHandle](i)

	return store.NewIssueCache(storeHandle.Store, registry.Registry, cfg.Approval.IssueCacheTTL, log.Logger), nil
}
