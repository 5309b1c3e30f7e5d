package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/openfed/openfed/pkg/stores"
)

func tempStorePath() (string, func()) {
	dir, err := os.MkdirTemp("", "openfed-store-*")
	if err != nil {
		log.Fatal(err)
	}
	return filepath.Join(dir, "openfed.db"), func() { _ = os.RemoveAll(dir) }
}

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	path, cleanup := tempStorePath()
	defer cleanup()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            path,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_UpsertArtifact demonstrates recording artifact history.
func ExampleSQLiteStore_UpsertArtifact() {
	path, cleanup := tempStorePath()
	defer cleanup()

	store, _ := stores.NewSQLiteStore(stores.Config{Path: path})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	now := time.Now().UTC()
	record := &stores.ArtifactRecord{
		Location:  "https://cdn.example.com/checkout.wasm",
		Container: "checkout",
		Version:   "2.4.0",
		State:     stores.ArtifactStateLoaded,
		SizeBytes: 184320,
		FetchedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.UpsertArtifact(ctx, record); err != nil {
		log.Fatal(err)
	}

	retrieved, err := store.GetArtifact(ctx, record.Location)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Container: %s, State: %s\n", retrieved.Container, retrieved.State)
	// Output: Container: checkout, State: loaded
}

// ExampleSQLiteStore_AppendEvent demonstrates the persisted event log.
func ExampleSQLiteStore_AppendEvent() {
	path, cleanup := tempStorePath()
	defer cleanup()

	store, _ := stores.NewSQLiteStore(stores.Config{Path: path})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	remote := "checkout"
	event := &stores.EventRecord{
		EventID:   "evt-001",
		Type:      "artifact.loaded",
		Source:    "artifact-cache",
		Remote:    &remote,
		Level:     stores.EventLevelInfo,
		Message:   "artifact loaded",
		Timestamp: time.Now().UTC(),
	}

	if err := store.AppendEvent(ctx, event); err != nil {
		log.Fatal(err)
	}

	events, err := store.GetEvents(ctx, &remote, nil, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Event count: %d, Message: %s\n", len(events), events[0].Message)
	// Output: Event count: 1, Message: artifact loaded
}
