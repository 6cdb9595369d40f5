package cli

import (
	"github.com/accented-ai/partitioncache/internal/queue"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

func queueJob(partitionKey, sql string, priority int) queue.Job {
	return queue.Job{PartitionKey: partitionKey, Hash: sqlfrag.HashQuery(sql, partitionKey), Query: sql, Priority: priority}
}
