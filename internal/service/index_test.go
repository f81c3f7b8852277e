package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/raphaelgruber/aiact-go/internal/lexindex"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedSource struct {
	gate     chan struct{}
	calls    atomic.Int32
	passages []models.Passage
	err      error
}

func (s *gatedSource) Passages(ctx context.Context) ([]models.Passage, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.passages, nil
}

type countingReloader struct{ n atomic.Int32 }

func (r *countingReloader) Reload() error {
	r.n.Add(1)
	return nil
}

func corpus() []models.Passage {
	return []models.Passage{
		{ID: "5", Type: models.PassageArticle, RawText: "Prepovedane prakse umetne inteligence"},
		{ID: "113", Type: models.PassageArticle, RawText: "Začetek veljavnosti uredbe"},
		{ID: "uvodna_1", Type: models.PassagePoint, RawText: "Namen uredbe je izboljšati notranji trg"},
	}
}

func newIndexService(t *testing.T, src *gatedSource, reloader Reloader) (*IndexService, *lexindex.Handle) {
	t.Helper()
	handle := lexindex.NewHandle(nil)
	r := retriever.New(handle, src, retriever.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewIndexService(ctx, r, reloader, nil, nil), handle
}

func TestRebuildReportsProgress(t *testing.T) {
	reloader := &countingReloader{}
	svc, handle := newIndexService(t, &gatedSource{passages: corpus()}, reloader)

	var mu sync.Mutex
	var seen []int
	result, err := svc.Rebuild(context.Background(), func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		seen = append(seen, done)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Passages)
	assert.Positive(t, result.Terms)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, int32(1), reloader.n.Load())
	require.NotNil(t, handle.Current())

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Passages)
	assert.Equal(t, result.Terms, stats.Terms)
}

func TestStartRebuildCoalesces(t *testing.T) {
	src := &gatedSource{gate: make(chan struct{}), passages: corpus()}
	svc, handle := newIndexService(t, src, nil)

	first := svc.StartRebuild("api")
	again := svc.StartRebuild("api")
	watcher := svc.StartRebuild("watcher")
	assert.Same(t, first, again)
	assert.Same(t, first, watcher)

	close(src.gate)
	svc.Wait()

	jobs := svc.Jobs().ListJobs()
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		snap := job.Snapshot()
		assert.Equal(t, JobStatusCompleted, snap.Status)
		assert.Equal(t, JobTypeIndexRebuild, snap.Type)
		require.NotNil(t, snap.Result)
		assert.Equal(t, 3, snap.Result.Passages)
		assert.Equal(t, 3, snap.Progress)
		assert.NotNil(t, snap.CompletedAt)
	}
	assert.Equal(t, "watcher", jobs[0].Snapshot().Trigger)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.NotNil(t, handle.Current())
}

func TestStartRebuildFailureKeepsIndex(t *testing.T) {
	src := &gatedSource{passages: corpus()}
	svc, handle := newIndexService(t, src, nil)

	_, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	served := handle.Current()

	src.err = errors.New("disk gone")
	job := svc.StartRebuild("cli")
	svc.Wait()

	snap := job.Snapshot()
	assert.Equal(t, JobStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "disk gone")
	assert.True(t, job.Done())
	assert.Same(t, served, handle.Current())
	assert.Same(t, job, svc.Jobs().GetJob(job.ID))
	assert.Nil(t, svc.Jobs().GetJob("missing"))
}

func TestJobManagerOrdering(t *testing.T) {
	m := NewJobManager(nil)
	a := m.CreateJob(JobTypeIndexRebuild, "api")
	b := m.CreateJob(JobTypeIndexRebuild, "cli")
	b.StartedAt = a.StartedAt.Add(1)

	jobs := m.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, b.ID, jobs[0].ID)

	m.UpdateProgress(a, 1, 4)
	snap := a.Snapshot()
	assert.Equal(t, JobStatusRunning, snap.Status)
	assert.Equal(t, 1, snap.Progress)
	assert.Equal(t, 4, snap.Total)
	assert.False(t, a.Done())
}
