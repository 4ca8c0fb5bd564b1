package bbs

import "context"

// BBSService defines the interface for forum operations.
// This interface allows handlers and the watcher to be tested with mock implementations.
// Note: The stutter in the naming is intentional because we have a struct called Service.
//
//goland:noinspection GoNameStartsWithPackageName
type BBSService interface {
	// RefreshMenu fetches the board directory and reconciles the stored boards with it.
	RefreshMenu(ctx context.Context) (*RefreshResult, error)

	// RefreshBoard fetches a board's thread index and applies it to the stored threads.
	RefreshBoard(ctx context.Context, boardID string) (*RefreshResult, error)

	// PruneBoard deletes threads that left the board index and were never followed or fetched.
	PruneBoard(ctx context.Context, boardID string) (int64, error)

	// SyncThread fetches what is new in a thread and merges it into the store.
	SyncThread(ctx context.Context, threadID string) (*SyncResult, error)

	// RefetchThread downloads a thread in full and replaces its stored messages.
	RefetchThread(ctx context.Context, threadID string) (*SyncResult, error)

	// Submit posts a message to a thread.
	Submit(ctx context.Context, req PostRequest) (*PostResult, error)

	// IsSyncing reports whether a synchronization of the thread is in flight.
	IsSyncing(threadID string) bool
}

// Ensure Service implements BBSService interface
var _ BBSService = (*Service)(nil)
