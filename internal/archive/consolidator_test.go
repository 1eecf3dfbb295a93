package archive_test

import (
	"database/sql"
	"testing"

	"pinarch/internal/archive"
	"pinarch/internal/model"
	"pinarch/internal/testutil"
)

func catalogPin(pinID, fileID string, sourceDate int64) model.Pin {
	return model.Pin{
		PinID:            pinID,
		FileID:           fileID,
		FileExtension:    "jpg",
		SourceURL:        "https://pinterest.com/pin/" + pinID + "/",
		OriginalMediaURL: "https://i.pinimg.com/originals/aa/bb/cc/" + fileID + ".jpg",
		SourceDate:       sql.NullInt64{Int64: sourceDate, Valid: true},
	}
}

func mustInsert(t *testing.T, store archive.Store, pin model.Pin) {
	t.Helper()
	inserted, err := store.InsertPin(pin)
	if err != nil {
		t.Fatalf("InsertPin(%s) error = %v", pin.PinID, err)
	}
	if !inserted {
		t.Fatalf("InsertPin(%s) = false, want true", pin.PinID)
	}
}

func TestConsolidator_Run(t *testing.T) {
	t.Run("collapses a duplicate group onto the oldest record", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		fileID := hex32('a')
		mustInsert(t, store, catalogPin("501", fileID, 300))
		mustInsert(t, store, catalogPin("502", fileID, 100))
		mustInsert(t, store, catalogPin("503", fileID, 200))

		c := archive.NewConsolidator(store, archive.NewNopLogger())

		stats, err := c.Run()
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.GroupsConsolidated != 1 {
			t.Errorf("GroupsConsolidated = %d, want 1", stats.GroupsConsolidated)
		}
		if stats.DuplicatesRemoved != 2 {
			t.Errorf("DuplicatesRemoved = %d, want 2", stats.DuplicatesRemoved)
		}

		count, err := store.CountPins()
		if err != nil {
			t.Fatalf("CountPins() error = %v", err)
		}
		if count != 1 {
			t.Errorf("CountPins() = %d, want 1", count)
		}

		survivor, err := store.FindPinByFileID(fileID)
		if err != nil {
			t.Fatalf("FindPinByFileID() error = %v", err)
		}
		if survivor == nil {
			t.Fatal("no survivor left for the group")
		}
		if survivor.PinID != "502" {
			t.Errorf("survivor = %s, want 502 (earliest source date)", survivor.PinID)
		}
		if survivor.Rating != 2 {
			t.Errorf("survivor rating = %d, want 2", survivor.Rating)
		}
	})

	t.Run("accumulates rating across passes", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		fileID := hex32('b')
		mustInsert(t, store, catalogPin("601", fileID, 100))
		mustInsert(t, store, catalogPin("602", fileID, 200))

		c := archive.NewConsolidator(store, archive.NewNopLogger())
		if _, err := c.Run(); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}

		// New duplicates for the same media file arrive later.
		mustInsert(t, store, catalogPin("603", fileID, 300))
		mustInsert(t, store, catalogPin("604", fileID, 400))

		stats, err := c.Run()
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if stats.DuplicatesRemoved != 2 {
			t.Errorf("DuplicatesRemoved = %d, want 2", stats.DuplicatesRemoved)
		}

		survivor, err := store.FindPinByFileID(fileID)
		if err != nil {
			t.Fatalf("FindPinByFileID() error = %v", err)
		}
		if survivor == nil {
			t.Fatal("no survivor left for the group")
		}
		if survivor.PinID != "601" {
			t.Errorf("survivor = %s, want 601", survivor.PinID)
		}
		if survivor.Rating != 3 {
			t.Errorf("survivor rating = %d, want 3 (1 + 2)", survivor.Rating)
		}
	})

	t.Run("breaks source date ties by insertion order", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		fileID := hex32('c')
		mustInsert(t, store, catalogPin("701", fileID, 100))
		mustInsert(t, store, catalogPin("702", fileID, 100))

		c := archive.NewConsolidator(store, archive.NewNopLogger())
		if _, err := c.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		survivor, err := store.FindPinByFileID(fileID)
		if err != nil {
			t.Fatalf("FindPinByFileID() error = %v", err)
		}
		if survivor == nil || survivor.PinID != "701" {
			t.Errorf("survivor = %v, want 701 (inserted first)", survivor)
		}
	})

	t.Run("consolidates independent groups in one pass", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		mustInsert(t, store, catalogPin("801", hex32('d'), 100))
		mustInsert(t, store, catalogPin("802", hex32('d'), 200))
		mustInsert(t, store, catalogPin("803", hex32('e'), 100))
		mustInsert(t, store, catalogPin("804", hex32('e'), 200))
		mustInsert(t, store, catalogPin("805", hex32('f'), 100))

		c := archive.NewConsolidator(store, archive.NewNopLogger())

		stats, err := c.Run()
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.GroupsConsolidated != 2 {
			t.Errorf("GroupsConsolidated = %d, want 2", stats.GroupsConsolidated)
		}
		if stats.DuplicatesRemoved != 2 {
			t.Errorf("DuplicatesRemoved = %d, want 2", stats.DuplicatesRemoved)
		}

		count, err := store.CountPins()
		if err != nil {
			t.Fatalf("CountPins() error = %v", err)
		}
		if count != 3 {
			t.Errorf("CountPins() = %d, want 3", count)
		}

		// The singleton group was untouched.
		single, err := store.FindPinByFileID(hex32('f'))
		if err != nil {
			t.Fatalf("FindPinByFileID() error = %v", err)
		}
		if single == nil || single.Rating != 0 {
			t.Errorf("singleton = %v, want rating 0", single)
		}
	})

	t.Run("second pass is a no-op", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		fileID := hex32('1')
		mustInsert(t, store, catalogPin("901", fileID, 100))
		mustInsert(t, store, catalogPin("902", fileID, 200))

		c := archive.NewConsolidator(store, archive.NewNopLogger())
		if _, err := c.Run(); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}

		stats, err := c.Run()
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if stats.GroupsConsolidated != 0 || stats.DuplicatesRemoved != 0 {
			t.Errorf("stats = %+v, want all zero", stats)
		}

		survivor, err := store.FindPinByFileID(fileID)
		if err != nil {
			t.Fatalf("FindPinByFileID() error = %v", err)
		}
		if survivor == nil || survivor.Rating != 1 {
			t.Errorf("survivor = %v, want rating 1 (not double counted)", survivor)
		}
	})
}
