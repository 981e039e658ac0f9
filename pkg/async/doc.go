// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// Goroutines started here recover from panics, enforce a timeout and respect
// context cancellation.
//
// SafeGo runs a fire-and-forget task and logs its failure:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "draft cleanup", func(ctx context.Context) error {
//		return drafts.Delete(ctx, sessionID)
//	})
//
// Batch fans a slice out over a bounded number of workers and collects every
// error:
//
//	errs := async.Batch(ctx, swaps, 4, 30*time.Second, func(ctx context.Context, s *swaps.Swap) error {
//		return runner.apply(ctx, s)
//	})
//
// # Related Packages
//
//   - pkg/checkout: uses SafeGo for post-commit cleanup
//   - pkg/swaps: uses Batch to apply due plan swaps
package async
