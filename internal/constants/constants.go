package constants

import "time"

// Defaults shared by all three engines and the CLI.
const (
	// DefaultPort is the TCP port the listener binds when -p is not given.
	DefaultPort = 9999

	// ListenBacklog is the listen(2) backlog for the accept socket.
	ListenBacklog = 512

	// RecvBufferSize is the per-connection receive buffer size used by the
	// epoll engine and the single-shot completion engine (4 KiB).
	RecvBufferSize = 4096

	// SQDepth is the submission/completion queue depth for the completion
	// engines (256 entries).
	SQDepth = 256

	// BufRingCount is the number of buffers registered in the multishot
	// engine's provided-buffer ring.
	BufRingCount = 256

	// BufRingBufSize is the size of each buffer in the provided-buffer ring
	// (4 KiB), matching the spec's default of 256 buffers x 4096 bytes.
	BufRingBufSize = 4096

	// BufRingGroupID is the fixed buffer-group identifier the ring is
	// registered under.
	BufRingGroupID = 1
)

// Timing constants for the event loop.
const (
	// CompletionWaitTimeout bounds how long a completion engine blocks
	// waiting for CQEs before running the reporter and re-checking the
	// shutdown flag.
	CompletionWaitTimeout = 100 * time.Millisecond

	// ReportInterval is the minimum spacing between non-forced status lines.
	ReportInterval = 1 * time.Second
)
