package checkpoint

// Checkpoint records the next block a pipeline has not processed yet.
// Timestamp is the Unix time in seconds of the write and decides which row
// survives deduplication.
type Checkpoint struct {
	Pipeline  string `json:"pipeline"`
	NextBlock uint64 `json:"next_block"`
	Timestamp int64  `json:"timestamp"`
}
