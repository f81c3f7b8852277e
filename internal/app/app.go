// Package app wires the services shared by the aiact binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/raphaelgruber/aiact-go/internal/corpus"
	"github.com/raphaelgruber/aiact-go/internal/db"
	"github.com/raphaelgruber/aiact-go/internal/lexindex"
	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/retriever"
	"github.com/raphaelgruber/aiact-go/internal/service"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

// App holds every long-lived dependency.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Store     store.Store
	Catalog   *corpus.Catalog
	Retriever *retriever.Retriever
	Completer llm.Completer
	Engine    *workflow.Engine
	Chat      *service.ChatService
	Index     *service.IndexService

	cancel  context.CancelFunc
	watcher *corpus.Watcher
}

// Option customizes New.
type Option func(*options)

type options struct {
	completer llm.Completer
	store     store.Store
}

// WithCompleter replaces the completion service built from the config.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithStore replaces the store selected by the config.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// NewRetriever builds the corpus catalog and a retriever over the
// persisted index. Nothing is read until the first query.
func NewRetriever(cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*corpus.Catalog, *retriever.Retriever) {
	catalog := corpus.NewCatalog(cfg.CorpusPath)
	r := retriever.New(lexindex.NewHandle(nil), catalog, retriever.Options{
		Dir:     cfg.IndexDir,
		Metrics: collector,
		Logger:  logger,
	})
	return catalog, r
}

// OpenStore opens the conversation store selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory conversation store, history is lost on exit")
		return store.NewMemory(), nil

	case config.StoreSQLite:
		return store.OpenSQLite(cfg.SQLitePath, logger)

	case config.StoreSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		return db.NewStore(client), nil

	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
	}
}

// New creates an App with all dependencies. Background index jobs run
// until Close.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Create metrics collector for runtime statistics
	mc := metrics.NewCollector()

	completer := o.completer
	if completer == nil {
		var err error
		completer, err = llm.New(ctx, cfg, llm.Options{Metrics: mc, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	conversations := o.store
	if conversations == nil {
		var err error
		conversations, err = OpenStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	conversations = store.WithMetrics(conversations, mc)

	catalog, ret := NewRetriever(cfg, mc, logger)

	engine, err := workflow.NewEngine(completer, ret, conversations, workflow.Options{
		RetrieveK:    cfg.RetrieveK,
		SelectMax:    cfg.SelectMax,
		StreamBuffer: cfg.StreamBuffer,
		Metrics:      mc,
		Logger:       logger,
	})
	if err != nil {
		_ = conversations.Close()
		return nil, err
	}

	chat := service.NewChatService(engine, conversations, completer, ret, catalog, service.ChatOptions{
		GenerateTitles:   cfg.GenerateTitles,
		TitleTemperature: cfg.TitleTemperature,
		Logger:           logger,
	})

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	index := service.NewIndexService(jobCtx, ret, catalog, service.NewJobManager(logger), logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   mc,
		Store:     conversations,
		Catalog:   catalog,
		Retriever: ret,
		Completer: completer,
		Engine:    engine,
		Chat:      chat,
		Index:     index,
		cancel:    cancel,
	}, nil
}

// WatchCorpus schedules an index rebuild whenever the corpus file changes.
func (a *App) WatchCorpus(ctx context.Context) error {
	w, err := corpus.NewWatcher(a.Config.CorpusPath, corpus.DefaultDebounce, a.Logger)
	if err != nil {
		return err
	}
	if err := w.Watch(ctx, a.Index.OnCorpusChange); err != nil {
		_ = w.Close()
		return err
	}
	a.watcher = w
	a.Logger.Info("watching corpus for changes", "path", a.Config.CorpusPath)
	return nil
}

// WipeData deletes every conversation. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	convs, err := a.Store.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if err := a.Store.Delete(ctx, c.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	a.Logger.Info("conversations wiped", "count", len(convs))
	return nil
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	a.cancel()
	a.Index.Wait()
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
