package echobench

import "github.com/behrlich/echobench/internal/constants"

// Re-exported defaults for callers that want the benchmark's tuning knobs
// without importing internal/constants directly.
const (
	DefaultPort    = constants.DefaultPort
	ListenBacklog  = constants.ListenBacklog
	RecvBufferSize = constants.RecvBufferSize
	SQDepth        = constants.SQDepth
	BufRingCount   = constants.BufRingCount
	BufRingBufSize = constants.BufRingBufSize
	BufRingGroupID = constants.BufRingGroupID
)
