package queuetest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/partitioncache/internal/queue"
	"github.com/accented-ai/partitioncache/internal/queue/queuetest"
)

func TestFakePopOrdersByPriority(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := queuetest.New()

	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "low", Priority: 1}))
	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "high", Priority: 10}))

	job, err := f.PopQuery(ctx)
	require.NoError(t, err)
	require.Equal(t, "high", job.Hash)

	job, err = f.PopQuery(ctx)
	require.NoError(t, err)
	require.Equal(t, "low", job.Hash)
}

func TestFakePushDedupesByHashAndIncrementsPriorityRegardlessOfPushedValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := queuetest.New()

	require.NoError(t, f.PushFragment(ctx, queue.Job{PartitionKey: "p", Hash: "h", Priority: 5}))
	require.NoError(t, f.PushFragment(ctx, queue.Job{PartitionKey: "p", Hash: "h", Priority: 1}))

	n, err := f.FragmentLength(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := f.PopFragment(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, job.Priority)
}

func TestFakePushTrueDuplicateAtSamePriorityStillBumps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := queuetest.New()

	// §4.4/P9 Scenario 5: push Q1, push Q2, push Q1 again -> Q1's
	// priority rises even though every push used the same constant
	// priority, as every real caller does.
	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "q1", Priority: 0}))
	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "q2", Priority: 0}))
	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "q1", Priority: 0}))

	job, err := f.PopQuery(ctx)
	require.NoError(t, err)
	require.Equal(t, "q1", job.Hash)
	require.Equal(t, 1, job.Priority)

	job, err = f.PopQuery(ctx)
	require.NoError(t, err)
	require.Equal(t, "q2", job.Hash)
	require.Equal(t, 0, job.Priority)
}

func TestFakePopBlocksUntilPushed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := queuetest.New()

	done := make(chan queue.Job, 1)

	go func() {
		job, err := f.PopQuery(ctx)
		require.NoError(t, err)
		done <- job
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "h"}))

	select {
	case job := <-done:
		require.Equal(t, "h", job.Hash)
	case <-time.After(time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestFakePopReturnsOnContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	f := queuetest.New()

	errCh := make(chan error, 1)

	go func() {
		_, err := f.PopQuery(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pop did not return after context cancellation")
	}
}

func TestFakeClearQueriesAndFragments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := queuetest.New()

	require.NoError(t, f.PushQuery(ctx, queue.Job{PartitionKey: "p", Hash: "h"}))
	require.NoError(t, f.PushFragment(ctx, queue.Job{PartitionKey: "p", Hash: "h"}))

	require.NoError(t, f.ClearQueries(ctx))
	require.NoError(t, f.ClearFragments(ctx))

	n, err := f.QueryLength(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = f.FragmentLength(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
