package domain

import "context"

// BuildAdapter is the port interface every job-triggering backend implements.
// The engine never assumes an adapter can block until a job completes: Submit
// and Poll must return promptly, and all waiting happens in the engine.
type BuildAdapter interface {
	// Submit triggers the job and returns a handle with StatusNone and SubmittedAt set.
	Submit(ctx context.Context, job JobTemplate) (JobHandle, error)
	// Poll returns the adapter's current view of the job. It must be idempotent.
	Poll(ctx context.Context, job JobHandle) (JobUpdate, error)
	// Cancel asks the backend to stop the job. It is best-effort.
	Cancel(ctx context.Context, job JobHandle) error
}
