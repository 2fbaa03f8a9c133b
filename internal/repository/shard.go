package repository

import "hash/crc32"

// DefaultShardCount is the number of event partitions per conversation.
// Spreading the event log across fixed shards bounds per-partition write
// throughput under heavy chat traffic at the cost of N queries on read.
const DefaultShardCount = 16

// shardFor maps an event sort key onto one of shardCount partitions. The
// mapping must be stable across process restarts so append and read hit the
// same partitions.
func shardFor(sortKey string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(sortKey)) % uint32(shardCount))
}
