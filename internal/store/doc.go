// Package store defines the persistence contract consumed by the study
// session lifecycle, together with the errors and transaction helper shared
// by its implementations. The core packages only depend on these interfaces
// and never perform I/O themselves.
package store
