// Package postgres provides the PostgreSQL implementation of the
// store.SessionStore interface together with the embedded goose schema
// migrations it runs against.
//
// Session creation, order finalization and review recording each run in a
// single transaction. Session rows are locked with SELECT ... FOR UPDATE while
// their counters change, and the unique (session_id, card_id) constraint on
// reviews makes a repeated rating surface as store.ErrReviewExists.
//
// Connection loss, timeouts, serialization failures and deadlocks are
// returned as *domain.TransientError so callers can retry the same call.
package postgres
