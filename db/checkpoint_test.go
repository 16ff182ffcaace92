package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"silo/types"
)

func newCheckpointTestStore() *Store {
	store := NewStore()
	obj := NewObject(0, 0)
	obj.Name = "System Object"
	obj.Properties["greeting"] = &Property{
		Name:    "greeting",
		Value:   types.NewStr("hello"),
		Owner:   0,
		Perms:   PropRead,
		Defined: true,
	}
	_ = store.Add(obj)
	return store
}

func TestCheckpointEngineSkipsEmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	engine := NewCheckpointEngine(NewStore(), DefaultCheckpointConfig(dir))

	if err := engine.Snapshot(); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if err := engine.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "snapshots")); !os.IsNotExist(err) {
		t.Errorf("expected no snapshot directory for an empty database")
	}
	if _, err := os.Stat(filepath.Join(dir, "exports")); !os.IsNotExist(err) {
		t.Errorf("expected no export directory for an empty database")
	}
}

func TestCheckpointEngineBinaryRetention(t *testing.T) {
	dir := t.TempDir()
	store := newCheckpointTestStore()
	cfg := DefaultCheckpointConfig(dir)
	cfg.BinaryRetention = 2
	engine := NewCheckpointEngine(store, cfg)

	for i := 0; i < 5; i++ {
		if err := engine.Snapshot(); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	files, err := engine.listGenerations(filepath.Join(dir, "snapshots"), "snapshot")
	if err != nil {
		t.Fatalf("listGenerations() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2 (retention)", len(files))
	}
}

func TestCheckpointEngineTextRetentionPreservesOldSurvivor(t *testing.T) {
	dir := t.TempDir()
	store := newCheckpointTestStore()
	exportsDir := filepath.Join(dir, "exports")
	if err := os.MkdirAll(exportsDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	// Seed one generation older than 24 hours, plus several recent ones,
	// exceeding retention.
	old := filepath.Join(exportsDir, "export-1.db")
	if err := os.WriteFile(old, []byte("old generation"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	cfg := DefaultCheckpointConfig(dir)
	cfg.TextRetention = 2
	engine := NewCheckpointEngine(store, cfg)

	for i := 0; i < 3; i++ {
		if err := engine.Export(); err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	files, err := engine.listGenerations(exportsDir, "export")
	if err != nil {
		t.Fatalf("listGenerations() error = %v", err)
	}

	foundOld := false
	for _, f := range files {
		if f.path == old {
			foundOld = true
		}
	}
	if !foundOld {
		t.Errorf("expected the generation older than 24h to survive retention, got %v", files)
	}
}

func TestCheckpointEngineRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newCheckpointTestStore()
	engine := NewCheckpointEngine(store, DefaultCheckpointConfig(dir))

	if err := engine.Snapshot(); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	files, err := engine.listGenerations(filepath.Join(dir, "snapshots"), "snapshot")
	if err != nil {
		t.Fatalf("listGenerations() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len(files) = %d, want 1", len(files))
	}

	// Mutate the live store after the snapshot was taken.
	store.Get(0).Properties["greeting"].Value = types.NewStr("goodbye")

	database, err := LoadDatabase(files[0].path)
	if err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}

	restored := database.NewStoreFromDatabase()
	prop := restored.Get(0).Properties["greeting"]
	if prop == nil {
		t.Fatalf("restored property missing")
	}
	if got := prop.Value.String(); got != `"hello"` && got != "hello" {
		t.Errorf("restored greeting = %q, want pre-mutation value", got)
	}
}
