package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/approval"
	"github.com/inkwellapp/inkwell-server/internal/archive"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/filename"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/rename"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// sessionSweepInterval is how often expired approval sessions are evicted.
const sessionSweepInterval = time.Minute

// SessionStoreHandle wraps the approval session store and its janitor.
type SessionStoreHandle struct {
	*approval.SessionStore
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SessionStoreHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideSessionStore provides the in-memory approval session store and
// starts its expiry janitor.
func ProvideSessionStore(i do.Injector) (*SessionStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	sessions := approval.NewSessionStore(cfg.Approval.SessionTTL, cfg.Approval.CompletedRetention, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	sessions.StartJanitor(ctx, sessionSweepInterval)

	log.Info("Approval session janitor started",
		"ttl", cfg.Approval.SessionTTL,
		"retention", cfg.Approval.CompletedRetention,
	)

	return &SessionStoreHandle{SessionStore: sessions, cancel: cancel}, nil
}

// ProvideArchiveStore provides ComicInfo read/merge and archive conversion.
func ProvideArchiveStore(i do.Injector) (*archive.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return archive.New(archive.Config{ExtractorPath: cfg.Archive.ExtractorPath}, log.Logger), nil
}

// ProvideRenameEngine provides the filename template engine.
func ProvideRenameEngine(i do.Injector) (*rename.Engine, error) {
	log := do.MustInvoke[*logger.Logger](i)
	catalog := do.MustInvoke[*CatalogHandle](i)

	return rename.NewEngine(catalog.Store, log.Logger), nil
}

// ProvideApprovalService provides the metadata approval pipeline.
func ProvideApprovalService(i do.Injector) (*approval.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sessions := do.MustInvoke[*SessionStoreHandle](i)
	registry := do.MustInvoke[*MetadataRegistryHandle](i)
	issues := do.MustInvoke[*store.IssueCache](i)
	archives := do.MustInvoke[*archive.Store](i)
	catalog := do.MustInvoke[*CatalogHandle](i)
	renamer := do.MustInvoke[*rename.Engine](i)
	index := do.MustInvoke[*SearchIndexHandle](i)

	svc := approval.NewService(approval.Deps{
		Sessions: sessions.SessionStore,
		Provider: registry.Registry,
		Issues:   issues,
		Archives: archives,
		Catalog:  catalog.Store,
		Parser:   filename.NewParser(),
		Renamer:  renamer,
		Index:    index.SearchIndex,
	}, cfg.Approval, log.Logger)

	// Progress is informational; surface it in the debug log.
	svc.SetProgress(func(stage, detail string) {
		log.Debug("Approval progress", "stage", stage, "detail", detail)
	})

	return svc, nil
}
