package projector

import (
	"context"
	"sync"
	"testing"

	"github.com/leapstack-labs/pawseed/internal/projlist"
	"github.com/leapstack-labs/pawseed/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallel(t *testing.T) {
	e := batchEnv("t1", "t2", "t3", "t4")
	jobs := []Job{
		{BasisDir: "basis", TargetDir: "t1"},
		{BasisDir: "basis", TargetDir: "t2"},
		{BasisDir: "basis", TargetDir: "t3"},
		{BasisDir: "basis", TargetDir: "t4"},
	}

	var mu sync.Mutex
	seen := map[string]int{}
	failed, err := RunParallel(context.Background(), e.backend, e.provider, jobs, ParallelOptions{Workers: 2},
		func(ctx context.Context, job Job, p *Projector) error {
			res, err := p.SingleBandProjection(ctx, 0)
			if err != nil {
				return err
			}
			mu.Lock()
			seen[job.TargetDir] = len(res)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, map[string]int{"t1": 8, "t2": 8, "t3": 8, "t4": 8}, seen)
	assert.Equal(t, 4, e.backend.CallCount("BuildProjectorList"), "every job owns its list")
	assert.Equal(t, 0, e.backend.LiveWavefunctions())
	assert.Equal(t, 0, e.backend.LiveLists())
}

func TestRunParallel_Errors(t *testing.T) {
	jobs := []Job{
		{BasisDir: "basis", TargetDir: "t1"},
		{BasisDir: "basis", TargetDir: "missing"},
	}
	noop := func(context.Context, Job, *Projector) error { return nil }

	t.Run("ignored", func(t *testing.T) {
		e := batchEnv("t1")
		failed, err := RunParallel(context.Background(), e.backend, e.provider, jobs,
			ParallelOptions{IgnoreErrors: true, Session: Options{Logger: testutil.NewTestLogger(t)}}, noop)
		require.NoError(t, err)
		assert.Equal(t, 1, failed)
		assert.Equal(t, 0, e.backend.LiveWavefunctions())
	})

	t.Run("first error", func(t *testing.T) {
		e := batchEnv("t1")
		_, err := RunParallel(context.Background(), e.backend, e.provider, jobs, ParallelOptions{}, noop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
		assert.Equal(t, 0, e.backend.LiveWavefunctions())
		assert.Equal(t, 0, e.backend.LiveLists())
	})

	t.Run("shared list rejected", func(t *testing.T) {
		e := batchEnv("t1")
		_, err := RunParallel(context.Background(), e.backend, e.provider, jobs,
			ParallelOptions{Session: Options{ProjectorList: &projlist.List{}}}, noop)
		require.Error(t, err)
	})
}
