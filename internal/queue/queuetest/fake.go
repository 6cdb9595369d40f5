// Package queuetest provides an in-process fake queue.Provider for tests
// that exercise the fill worker without a live Postgres or Redis instance.
package queuetest

import (
	"container/heap"
	"context"
	"sync"

	"github.com/accented-ai/partitioncache/internal/queue"
)

type item struct {
	job   queue.Job
	index int
}

type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].job.Priority > pq[j].job.Priority
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue) Push(x any) {
	it := x.(*item) //nolint:forcetypeassert
	it.index = len(*pq)
	*pq = append(*pq, it)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]

	return it
}

// Fake is a priority-respecting, goroutine-safe in-memory Provider.
type Fake struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queries   priorityQueue
	fragments priorityQueue
	byHash    map[string]*item // dedupe key: queue name + partition key + hash
}

func New() *Fake {
	f := &Fake{byHash: make(map[string]*item)}
	f.cond = sync.NewCond(&f.mu)

	return f
}

func key(prefix, partitionKey, hash string) string {
	return prefix + "\x00" + partitionKey + "\x00" + hash
}

func (f *Fake) PushQuery(_ context.Context, job queue.Job) error {
	return f.push("q", &f.queries, job)
}

func (f *Fake) PushFragment(_ context.Context, job queue.Job) error {
	return f.push("f", &f.fragments, job)
}

func (f *Fake) push(prefix string, pq *priorityQueue, job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(prefix, job.PartitionKey, job.Hash)
	if existing, ok := f.byHash[k]; ok {
		// priority-bump-on-duplicate-push (§4.4): re-pushing an
		// already-queued fragment raises its priority by one, regardless
		// of what priority the duplicate push itself carried.
		existing.job.Priority++
		heap.Fix(pq, existing.index)

		f.cond.Broadcast()

		return nil
	}

	it := &item{job: job}
	heap.Push(pq, it)
	f.byHash[k] = it
	f.cond.Broadcast()

	return nil
}

func (f *Fake) PopQuery(ctx context.Context) (queue.Job, error) {
	return f.pop(ctx, "q", &f.queries)
}

func (f *Fake) PopFragment(ctx context.Context) (queue.Job, error) {
	return f.pop(ctx, "f", &f.fragments)
}

func (f *Fake) pop(ctx context.Context, prefix string, pq *priorityQueue) (queue.Job, error) {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
		case <-stop:
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()

	for pq.Len() == 0 {
		if ctx.Err() != nil {
			return queue.Job{}, ctx.Err()
		}

		f.cond.Wait()
	}

	it := heap.Pop(pq).(*item) //nolint:forcetypeassert
	delete(f.byHash, key(prefix, it.job.PartitionKey, it.job.Hash))

	return it.job, nil
}

func (f *Fake) QueryLength(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.queries.Len(), nil
}

func (f *Fake) FragmentLength(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fragments.Len(), nil
}

func (f *Fake) ClearQueries(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = nil

	return nil
}

func (f *Fake) ClearFragments(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fragments = nil

	return nil
}

func (f *Fake) Close() error { return nil }
