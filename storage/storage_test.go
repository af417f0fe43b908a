package storage

import (
	"fmt"
	"testing"
)

func openTestDB(t *testing.T) KeyValueDB {
	t.Helper()
	db, _, err := NewStore("badger", StoreConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("can't open badger store: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestBadgerRoundtrip(t *testing.T) {
	db := openTestDB(t)

	key := []byte("ledger:0001")
	if v, err := db.Get(key); err != nil || v != nil {
		t.Fatalf("expected missing key to return (nil, nil), got (%v, %v)", v, err)
	}

	if err := db.Put(key, []byte("pooled")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := db.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "pooled" {
		t.Errorf("expected %q, got %q", "pooled", string(v))
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if v, err := db.Get(key); err != nil || v != nil {
		t.Fatalf("expected deleted key to return (nil, nil), got (%v, %v)", v, err)
	}
}

func TestBadgerProcessPrefix(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		if err := db.Put([]byte(fmt.Sprintf("meta:block:%04d", i)), []byte{byte(i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := db.Put([]byte("pool:current"), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var keys []string
	err := db.ProcessPrefix([]byte("meta:block:"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessPrefix: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 keys under prefix, got %d: %v", len(keys), keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("keys not in ascending order: %q >= %q", keys[i-1], keys[i])
		}
	}

	if err := db.DeletePrefix([]byte("meta:block:")); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	var count int
	db.ProcessPrefix([]byte("meta:block:"), func(k, v []byte) error {
		count++
		return nil
	})
	if count != 0 {
		t.Errorf("expected no keys after DeletePrefix, got %d", count)
	}
	if v, err := db.Get([]byte("pool:current")); err != nil || v == nil {
		t.Errorf("DeletePrefix must not touch keys outside the prefix")
	}
}

func TestBadgerBatchAtomicCommit(t *testing.T) {
	db := openTestDB(t)

	batch := db.NewBatch()
	for i := 0; i < 10; i++ {
		if err := batch.Put([]byte(fmt.Sprintf("pool:rep:%04d", i)), []byte{byte(i)}); err != nil {
			t.Fatalf("batch Put: %v", err)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("batch Commit: %v", err)
	}

	var count int
	db.ProcessPrefix([]byte("pool:rep:"), func(k, v []byte) error {
		count++
		return nil
	})
	if count != 10 {
		t.Errorf("expected 10 committed entries, got %d", count)
	}
}
