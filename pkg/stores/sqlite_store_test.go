package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a file-backed SQLite store in a temp directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "openfed.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "openfed.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"artifacts", "resolutions", "shared_deps", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestArtifactCRUD tests artifact record operations
func TestArtifactCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	record := &ArtifactRecord{
		Location:  "https://cdn.example.com/checkout.wasm",
		Container: "checkout",
		Version:   "2.4.0",
		State:     ArtifactStateLoaded,
		SizeBytes: 184320,
		FetchedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.UpsertArtifact(ctx, record); err != nil {
		t.Fatalf("failed to upsert artifact: %v", err)
	}

	retrieved, err := store.GetArtifact(ctx, record.Location)
	if err != nil {
		t.Fatalf("failed to get artifact: %v", err)
	}

	if retrieved.Container != record.Container {
		t.Errorf("expected container %s, got %s", record.Container, retrieved.Container)
	}
	if retrieved.State != ArtifactStateLoaded {
		t.Errorf("expected state %s, got %s", ArtifactStateLoaded, retrieved.State)
	}
	if retrieved.SizeBytes != record.SizeBytes {
		t.Errorf("expected size %d, got %d", record.SizeBytes, retrieved.SizeBytes)
	}
	if retrieved.Error != nil {
		t.Errorf("expected no error message, got %v", *retrieved.Error)
	}

	// Upsert to failed state for the same location
	failure := "dial tcp: connection refused"
	record.State = ArtifactStateFailed
	record.Error = &failure
	record.UpdatedAt = now.Add(time.Second)

	if err := store.UpsertArtifact(ctx, record); err != nil {
		t.Fatalf("failed to upsert artifact second time: %v", err)
	}

	retrieved, err = store.GetArtifact(ctx, record.Location)
	if err != nil {
		t.Fatalf("failed to get updated artifact: %v", err)
	}

	if retrieved.State != ArtifactStateFailed {
		t.Errorf("expected state %s, got %s", ArtifactStateFailed, retrieved.State)
	}
	if retrieved.Error == nil || *retrieved.Error != failure {
		t.Errorf("expected error message %q, got %v", failure, retrieved.Error)
	}

	// Only one row should exist for the location
	list, err := store.ListArtifacts(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 artifact, got %d", len(list))
	}

	if err := store.DeleteArtifact(ctx, record.Location); err != nil {
		t.Fatalf("failed to delete artifact: %v", err)
	}

	if _, err := store.GetArtifact(ctx, record.Location); err == nil {
		t.Error("expected error when getting deleted artifact")
	}

	if err := store.DeleteArtifact(ctx, record.Location); err == nil {
		t.Error("expected error when deleting missing artifact")
	}
}

// TestResolutionOperations tests resolution audit records
func TestResolutionOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	location := "https://cdn.example.com/profile.wasm"

	record := &ResolutionRecord{
		ID:        "res-001",
		Remote:    "profile",
		Export:    "render",
		Location:  &location,
		State:     ResolutionStateRunning,
		StartedAt: now,
	}

	if err := store.CreateResolution(ctx, record); err != nil {
		t.Fatalf("failed to create resolution: %v", err)
	}

	if err := store.FinishResolution(ctx, record.ID, ResolutionStateResolved, nil); err != nil {
		t.Fatalf("failed to finish resolution: %v", err)
	}

	retrieved, err := store.GetResolution(ctx, record.ID)
	if err != nil {
		t.Fatalf("failed to get resolution: %v", err)
	}

	if retrieved.State != ResolutionStateResolved {
		t.Errorf("expected state %s, got %s", ResolutionStateResolved, retrieved.State)
	}
	if retrieved.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if retrieved.DurationMS == nil {
		t.Error("expected duration_ms to be set")
	}

	// Failed resolution with an error message
	failure := "export not found: missing"
	failed := &ResolutionRecord{
		ID:        "res-002",
		Remote:    "checkout",
		Export:    "missing",
		State:     ResolutionStateRunning,
		StartedAt: now,
	}
	if err := store.CreateResolution(ctx, failed); err != nil {
		t.Fatalf("failed to create second resolution: %v", err)
	}
	if err := store.FinishResolution(ctx, failed.ID, ResolutionStateFailed, &failure); err != nil {
		t.Fatalf("failed to fail resolution: %v", err)
	}

	retrieved, err = store.GetResolution(ctx, failed.ID)
	if err != nil {
		t.Fatalf("failed to get failed resolution: %v", err)
	}
	if retrieved.Error == nil || *retrieved.Error != failure {
		t.Errorf("expected error %q, got %v", failure, retrieved.Error)
	}

	// Filtered listing
	remote := "profile"
	list, err := store.ListResolutions(ctx, &remote, 10, 0)
	if err != nil {
		t.Fatalf("failed to list resolutions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 resolution for remote profile, got %d", len(list))
	}
	if list[0].ID != "res-001" {
		t.Errorf("expected res-001, got %s", list[0].ID)
	}

	// Unfiltered listing
	list, err = store.ListResolutions(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list all resolutions: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 resolutions, got %d", len(list))
	}

	// Finishing an unknown resolution fails
	if err := store.FinishResolution(ctx, "res-missing", ResolutionStateResolved, nil); err == nil {
		t.Error("expected error when finishing unknown resolution")
	}
}

// TestPruneResolutions tests retention cleanup
func TestPruneResolutions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	old := &ResolutionRecord{
		ID:        "res-old",
		Remote:    "checkout",
		Export:    "render",
		State:     ResolutionStateResolved,
		StartedAt: now.Add(-72 * time.Hour),
	}
	recent := &ResolutionRecord{
		ID:        "res-recent",
		Remote:    "checkout",
		Export:    "render",
		State:     ResolutionStateResolved,
		StartedAt: now,
	}

	for _, r := range []*ResolutionRecord{old, recent} {
		if err := store.CreateResolution(ctx, r); err != nil {
			t.Fatalf("failed to create resolution %s: %v", r.ID, err)
		}
	}

	pruned, err := store.PruneResolutions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune resolutions: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned resolution, got %d", pruned)
	}

	if _, err := store.GetResolution(ctx, "res-old"); err == nil {
		t.Error("expected old resolution to be pruned")
	}
	if _, err := store.GetResolution(ctx, "res-recent"); err != nil {
		t.Errorf("expected recent resolution to survive: %v", err)
	}
}

// TestSharedOperations tests shared dependency provenance records
func TestSharedOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	record := &SharedRecord{
		Name:       "ui-kit",
		Version:    "2.1.0",
		Origin:     "checkout",
		Consumers:  `["checkout"]`,
		ProvidedAt: now,
		UpdatedAt:  now,
	}

	if err := store.UpsertShared(ctx, record); err != nil {
		t.Fatalf("failed to upsert shared dependency: %v", err)
	}

	retrieved, err := store.GetShared(ctx, "ui-kit")
	if err != nil {
		t.Fatalf("failed to get shared dependency: %v", err)
	}
	if retrieved.Origin != "checkout" {
		t.Errorf("expected origin checkout, got %s", retrieved.Origin)
	}

	// A new consumer updates the record in place
	record.Consumers = `["checkout","profile"]`
	record.UpdatedAt = now.Add(time.Second)
	if err := store.UpsertShared(ctx, record); err != nil {
		t.Fatalf("failed to update shared dependency: %v", err)
	}

	retrieved, err = store.GetShared(ctx, "ui-kit")
	if err != nil {
		t.Fatalf("failed to get updated shared dependency: %v", err)
	}
	if retrieved.Consumers != `["checkout","profile"]` {
		t.Errorf("unexpected consumers: %s", retrieved.Consumers)
	}

	list, err := store.ListShared(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list shared dependencies: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 shared dependency, got %d", len(list))
	}

	if _, err := store.GetShared(ctx, "unknown"); err == nil {
		t.Error("expected error for unknown shared dependency")
	}
}

// TestEventOperations tests the persisted event log
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	remote := "checkout"
	location := "https://cdn.example.com/checkout.wasm"

	events := []*EventRecord{
		{
			EventID:   "evt-001",
			Type:      "artifact.loaded",
			Source:    "artifact-cache",
			Remote:    &remote,
			Location:  &location,
			Level:     EventLevelInfo,
			Message:   "artifact loaded",
			Timestamp: now,
		},
		{
			EventID:   "evt-002",
			Type:      "artifact.failed",
			Source:    "artifact-cache",
			Remote:    &remote,
			Location:  &location,
			Level:     EventLevelError,
			Message:   "fetch failed",
			Timestamp: now.Add(time.Second),
		},
		{
			EventID:   "evt-003",
			Type:      "shared.provided",
			Source:    "shared-registry",
			Level:     EventLevelInfo,
			Message:   "shared dependency provided",
			Timestamp: now.Add(2 * time.Second),
		},
	}

	for _, event := range events {
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event %s: %v", event.EventID, err)
		}
		if event.ID == 0 {
			t.Errorf("expected event %s to receive a row ID", event.EventID)
		}
	}

	// All events
	all, err := store.GetEvents(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}

	// Filter by remote
	byRemote, err := store.GetEvents(ctx, &remote, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events by remote: %v", err)
	}
	if len(byRemote) != 2 {
		t.Errorf("expected 2 events for remote checkout, got %d", len(byRemote))
	}

	// Filter by level
	level := EventLevelError
	byLevel, err := store.GetEvents(ctx, nil, &level, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events by level: %v", err)
	}
	if len(byLevel) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(byLevel))
	}
	if byLevel[0].EventID != "evt-002" {
		t.Errorf("expected evt-002, got %s", byLevel[0].EventID)
	}

	// Pagination
	page, err := store.GetEvents(ctx, nil, nil, 2, 0)
	if err != nil {
		t.Fatalf("failed to get first page: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected page of 2 events, got %d", len(page))
	}
}

// TestTransactions tests transaction rollback and commit
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	query := `
		INSERT INTO artifacts (location, container, version, state, size_bytes, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	location := "https://cdn.example.com/cart.wasm"

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query, location, "cart", "1.0.0", ArtifactStateLoaded, 1024, now, now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert artifact in transaction: %v", err)
	}

	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	if _, err := store.GetArtifact(ctx, location); err == nil {
		t.Error("expected error when getting rolled back artifact")
	}

	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin second transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query, location, "cart", "1.0.0", ArtifactStateLoaded, 1024, now, now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert artifact in second transaction: %v", err)
	}

	if err := store.CommitTx(tx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	retrieved, err := store.GetArtifact(ctx, location)
	if err != nil {
		t.Fatalf("failed to get committed artifact: %v", err)
	}
	if retrieved.Container != "cart" {
		t.Errorf("expected container cart, got %s", retrieved.Container)
	}
}
