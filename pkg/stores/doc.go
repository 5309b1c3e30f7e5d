// Package stores provides persistence layer implementations for OpenFed.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and CRUD operations for artifact history, resolution audit records,
// shared dependency provenance, and the persisted event log.
package stores
