package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/lexindex"
)

// Rebuilder rebuilds and swaps the served index.
type Rebuilder interface {
	Rebuild(ctx context.Context, opts ...lexindex.BuildOption) (*lexindex.Index, error)
	Index(ctx context.Context) (*lexindex.Index, error)
}

// Reloader refreshes cached corpus records after the file changed.
type Reloader interface {
	Reload() error
}

// IndexStats describes the served index.
type IndexStats struct {
	Passages int `json:"passages"`
	Terms    int `json:"terms"`
}

// IndexService runs index rebuilds, in the foreground or as tracked jobs.
// At most one rebuild job runs at a time; requests made while one runs are
// folded into a single follow-up rebuild.
type IndexService struct {
	index   Rebuilder
	catalog Reloader
	jobs    *JobManager
	logger  *slog.Logger

	mu      sync.Mutex
	running *Job
	pending string
	wg      sync.WaitGroup
	ctx     context.Context
}

// NewIndexService creates an index service. Jobs outlive the request that
// started them and stop when ctx is cancelled. catalog may be nil.
func NewIndexService(ctx context.Context, index Rebuilder, catalog Reloader, jobs *JobManager, logger *slog.Logger) *IndexService {
	if logger == nil {
		logger = slog.Default()
	}
	if jobs == nil {
		jobs = NewJobManager(logger)
	}
	return &IndexService{
		index:   index,
		catalog: catalog,
		jobs:    jobs,
		logger:  logger,
		ctx:     ctx,
	}
}

// Jobs returns the job manager tracking rebuilds.
func (s *IndexService) Jobs() *JobManager {
	return s.jobs
}

// Rebuild rebuilds the index synchronously. progress may be nil.
func (s *IndexService) Rebuild(ctx context.Context, progress lexindex.ProgressFunc) (*RebuildResult, error) {
	if s.catalog != nil {
		if err := s.catalog.Reload(); err != nil {
			return nil, err
		}
	}
	var opts []lexindex.BuildOption
	if progress != nil {
		opts = append(opts, lexindex.WithProgress(progress))
	}

	start := time.Now()
	idx, err := s.index.Rebuild(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &RebuildResult{
		Passages:   idx.Len(),
		Terms:      idx.Vectorizer().VocabularySize(),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// StartRebuild starts a background rebuild job and returns it. If a job is
// already running, a follow-up rebuild is scheduled and the running job is
// returned.
func (s *IndexService) StartRebuild(trigger string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != nil {
		if s.pending == "" {
			s.logger.Info("rebuild already running, scheduling follow-up", "job_id", s.running.ID, "trigger", trigger)
		}
		s.pending = trigger
		return s.running
	}
	return s.launch(trigger)
}

// OnCorpusChange is the watcher callback.
func (s *IndexService) OnCorpusChange() {
	s.StartRebuild("watcher")
}

// Wait blocks until no rebuild job is running or scheduled.
func (s *IndexService) Wait() {
	s.wg.Wait()
}

// Stats reports the size of the served index, loading it if needed.
func (s *IndexService) Stats(ctx context.Context) (IndexStats, error) {
	idx, err := s.index.Index(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{Passages: idx.Len(), Terms: idx.Vectorizer().VocabularySize()}, nil
}

// launch must be called with s.mu held.
func (s *IndexService) launch(trigger string) *Job {
	job := s.jobs.CreateJob(JobTypeIndexRebuild, trigger)
	s.running = job
	s.wg.Add(1)
	go s.runJob(job)
	return job
}

func (s *IndexService) runJob(job *Job) {
	defer s.wg.Done()

	s.jobs.SetRunning(job)
	result, err := s.Rebuild(s.ctx, func(done, total int) {
		s.jobs.UpdateProgress(job, done, total)
	})
	if err != nil {
		s.jobs.Fail(job, err)
	} else {
		s.jobs.Complete(job, result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = nil
	if s.pending != "" && s.ctx.Err() == nil {
		trigger := s.pending
		s.pending = ""
		s.launch(trigger)
		return
	}
	s.pending = ""
}
