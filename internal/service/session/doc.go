// Package session implements the study session lifecycle: building a batch of
// due and new cards under the daily quota, fixing its order, and applying
// ratings through the memory model while keeping progress idempotent and
// resumable.
//
// A Manager creates or resumes sessions; each session is then driven through
// its own Lifecycle:
//
//	lc, err := manager.Initialize(ctx, userID, domain.Filter{})
//	if err != nil { ... } // may be *domain.LimitReachedError or domain.ErrNoCardsAvailable
//	if err := lc.ShuffleAndFinalize(ctx, true); err != nil { ... }
//	for {
//		card, ok := lc.CurrentCard()
//		if !ok {
//			break
//		}
//		// present card, collect rating
//		if _, err := lc.RecordRating(ctx, rating, responseTimeMs); err != nil { ... }
//	}
//
// A Lifecycle is owned by a single caller and is not safe for concurrent use;
// at most one rating may be in flight per session.
package session
