// Package retriever answers ranked passage queries against the lexical
// index, loading it on first use and rebuilding it from the corpus when the
// persisted copy is missing or unusable.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/lexindex"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/textnorm"
	"golang.org/x/sync/singleflight"
)

// Source yields the corpus passages an index is built from.
type Source interface {
	Passages(ctx context.Context) ([]models.Passage, error)
}

// Options configures a Retriever.
type Options struct {
	// Dir is where index generations are persisted. Empty keeps rebuilt
	// indexes in memory only.
	Dir        string
	Normalizer textnorm.Normalizer
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// Retriever is safe for concurrent use.
type Retriever struct {
	handle     *lexindex.Handle
	source     Source
	dir        string
	normalizer textnorm.Normalizer
	metrics    *metrics.Collector
	logger     *slog.Logger

	loads   singleflight.Group
	buildMu sync.Mutex
}

// New creates a retriever over handle. source may be nil, in which case a
// missing index is reported instead of rebuilt.
func New(handle *lexindex.Handle, source Source, opts Options) *Retriever {
	if opts.Normalizer == nil {
		opts.Normalizer = textnorm.NewSlovenian()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		handle:     handle,
		source:     source,
		dir:        opts.Dir,
		normalizer: opts.Normalizer,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// Query returns up to k passages ranked by similarity to text; k <= 0
// returns every passage.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]models.ScoredPassage, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits := idx.Query(text, k)
	r.metrics.RecordTiming(metrics.OpIndexQuery, time.Since(start))
	return hits, nil
}

// Index returns the served index, loading or rebuilding it if none is
// loaded yet. Concurrent callers share a single load.
func (r *Retriever) Index(ctx context.Context) (*lexindex.Index, error) {
	if idx := r.handle.Current(); idx != nil {
		return idx, nil
	}

	ch := r.loads.DoChan("ensure", func() (any, error) {
		if idx := r.handle.Current(); idx != nil {
			return idx, nil
		}
		// The shared load must not die with the first caller's context.
		return r.ensure(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*lexindex.Index), nil
	}
}

func (r *Retriever) ensure(ctx context.Context) (*lexindex.Index, error) {
	if r.dir != "" {
		start := time.Now()
		idx, err := lexindex.Load(r.dir, r.normalizer)
		r.metrics.Observe(metrics.OpIndexLoad, start, err)
		if err == nil {
			served := r.handle.Install(idx)
			if served != idx {
				r.logger.Debug("index rebuilt during load, keeping rebuilt index", "dir", r.dir)
				return served, nil
			}
			r.logger.Info("index loaded", "dir", r.dir, "passages", idx.Len())
			return idx, nil
		}
		if !errors.Is(err, lexindex.ErrIndexMissing) {
			return nil, fmt.Errorf("load index: %w", err)
		}
		r.logger.Warn("index unavailable, rebuilding from corpus", "dir", r.dir, "error", err)
	}

	if r.source == nil {
		return nil, fmt.Errorf("%w: no corpus source to rebuild from", lexindex.ErrIndexMissing)
	}
	return r.Rebuild(ctx)
}

// Rebuild builds a fresh index from the corpus, persists it when a
// directory is configured and swaps it in. A failed rebuild leaves the
// served and persisted index untouched. Rebuilds are serialized.
func (r *Retriever) Rebuild(ctx context.Context, opts ...lexindex.BuildOption) (*lexindex.Index, error) {
	if r.source == nil {
		return nil, fmt.Errorf("%w: no corpus source", lexindex.ErrIndexBuild)
	}

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	start := time.Now()
	idx, err := r.build(ctx, opts)
	r.metrics.Observe(metrics.OpIndexBuild, start, err)
	if err != nil {
		r.logger.Error("index rebuild failed", "error", err)
		return nil, err
	}

	r.handle.Swap(idx)
	r.logger.Info("index rebuilt",
		"passages", idx.Len(),
		"terms", idx.Vectorizer().VocabularySize(),
		"duration_ms", time.Since(start).Milliseconds())
	return idx, nil
}

func (r *Retriever) build(ctx context.Context, opts []lexindex.BuildOption) (*lexindex.Index, error) {
	passages, err := r.source.Passages(ctx)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := lexindex.Build(passages, r.normalizer, opts...)
	if err != nil {
		return nil, err
	}

	if r.dir != "" {
		if err := lexindex.Save(r.dir, idx); err != nil {
			return nil, fmt.Errorf("save index: %w", err)
		}
	}
	return idx, nil
}

// Passage looks up an indexed passage by id, loading the index if needed.
func (r *Retriever) Passage(ctx context.Context, id string) (models.Passage, bool, error) {
	idx, err := r.Index(ctx)
	if err != nil {
		return models.Passage{}, false, err
	}
	p, ok := idx.Passage(id)
	return p, ok, nil
}
