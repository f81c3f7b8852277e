package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpIndexQuery, 10*time.Millisecond)
	c.RecordTiming(OpIndexQuery, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.IndexQuery)
	assert.Equal(t, int64(2), snap.IndexQuery.Count)
	assert.Equal(t, int64(40), snap.IndexQuery.TotalTimeMs)
	assert.Equal(t, 20.0, snap.IndexQuery.AvgTimeMs)
	assert.Equal(t, int64(10), snap.IndexQuery.MinTimeMs)
	assert.Equal(t, int64(30), snap.IndexQuery.MaxTimeMs)
	assert.Nil(t, snap.IndexQuery.TotalInputTokens)
	assert.Nil(t, snap.IndexBuild)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMComplete, time.Millisecond, 100, 20)
	c.RecordLLMUsage(OpLLMComplete, time.Millisecond, 50, 40)

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMComplete)
	require.NotNil(t, snap.LLMComplete.TotalInputTokens)
	assert.Equal(t, int64(150), *snap.LLMComplete.TotalInputTokens)
	assert.Equal(t, int64(60), *snap.LLMComplete.TotalOutputTokens)
	assert.Equal(t, int64(50), *snap.LLMComplete.MinInputTokens)
	assert.Equal(t, int64(40), *snap.LLMComplete.MaxOutputTokens)
}

func TestObserveAndStages(t *testing.T) {
	c := NewCollector()
	c.Observe(StageOp("retrieve"), time.Now(), nil)
	c.Observe(StageOp("retrieve"), time.Now(), errors.New("boom"))
	c.Observe(StageOp("classify_relevance"), time.Now(), nil)

	snap := c.Snapshot()
	require.Len(t, snap.Stages, 2)
	assert.Equal(t, int64(1), snap.Stages["retrieve"].Count)
	assert.Equal(t, int64(1), snap.Stages["retrieve"].Errors)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpTurn, time.Second)
	c.RecordLLMUsage(OpLLMStream, time.Second, 1, 1)
	c.Observe(OpTurn, time.Now(), nil)
	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpStoreWrite, time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Snapshot().StoreWrite.Count)
}
