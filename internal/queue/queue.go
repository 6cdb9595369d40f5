// Package queue implements the durable fragment/original-query queues of
// spec component D: at-least-once delivery to fill workers, with priority
// bump on duplicate push and a provider-agnostic interface so the
// Postgres-resident and Redis-resident implementations are interchangeable.
package queue

import "context"

// Job is one unit of fill work: either an original query awaiting
// fragmentation, or a single fragment awaiting execution (§4.4).
type Job struct {
	PartitionKey string
	Hash         string
	Query        string
	Priority     int
}

// Provider is the queue abstraction the fill worker and management CLI
// depend on (§4.4, §6).
type Provider interface {
	// PushQuery enqueues an original query for fragmentation. Pushing the
	// same query hash again bumps its priority instead of duplicating the
	// row (§4.4 "priority-bump-on-duplicate-push").
	PushQuery(ctx context.Context, job Job) error

	// PushFragment enqueues a single fragment for execution, with the
	// same priority-bump-on-duplicate semantics.
	PushFragment(ctx context.Context, job Job) error

	// PopQuery blocks (respecting ctx) until an original query job is
	// available, then atomically claims and returns it.
	PopQuery(ctx context.Context) (Job, error)

	// PopFragment blocks until a fragment job is available, then
	// atomically claims and returns it.
	PopFragment(ctx context.Context) (Job, error)

	QueryLength(ctx context.Context) (int, error)
	FragmentLength(ctx context.Context) (int, error)

	ClearQueries(ctx context.Context) error
	ClearFragments(ctx context.Context) error

	Close() error
}
