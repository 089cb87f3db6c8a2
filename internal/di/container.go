// Package di provides dependency injection configuration for the Inkwell server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/approval"
	"github.com/inkwellapp/inkwell-server/internal/archive"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/di/providers"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/rename"
	"github.com/inkwellapp/inkwell-server/internal/store"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideCatalog)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideArchiveStore)

	// Metadata layer
	do.Provide(injector, providers.ProvideMetadataRegistry)
	do.Provide(injector, providers.ProvideIssueCache)

	// Approval pipeline
	do.Provide(injector, providers.ProvideRenameEngine)
	do.Provide(injector, providers.ProvideSessionStore)
	do.Provide(injector, providers.ProvideApprovalService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services.
// This triggers lazy initialization in dependency order.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.CatalogHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*archive.Store](injector)

	_ = do.MustInvoke[*providers.MetadataRegistryHandle](injector)
	_ = do.MustInvoke[*store.IssueCache](injector)

	_ = do.MustInvoke[*rename.Engine](injector)
	_ = do.MustInvoke[*providers.SessionStoreHandle](injector)
	_ = do.MustInvoke[*approval.Service](injector)

	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
