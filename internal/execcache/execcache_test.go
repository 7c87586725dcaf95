package execcache_test

import (
	"path"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/guestsys/internal/execcache"
)

func mustMiss(t *testing.T, db *execcache.DB, key string) {
	t.Helper()
	if _, err := db.Get(key); err != execcache.ErrNoSuchKey {
		t.Errorf("get %s: unexpected error %s, expected %s", key, err, execcache.ErrNoSuchKey)
	}
}

func mustGet(t *testing.T, db *execcache.DB, key string, value string) {
	t.Helper()
	blob, err := db.Get(key)
	if err != nil {
		t.Errorf("get %s: unexpected error %s", key, err)
		return
	}
	if string(blob) != value {
		t.Errorf("get %s: got %s, expected %s", key, string(blob), value)
	}
}

func TestDB(t *testing.T) {
	db, err := execcache.NewDB(path.Join(t.TempDir(), "exec.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	timestamp := time.Now()

	mustMiss(t, db, "/bin/a.sh")

	if err := db.Put("/bin/a.sh", timestamp, []byte("old")); err != nil {
		t.Errorf("put: unexpected error %s", err)
	}
	if err := db.Put("/bin/a.sh", timestamp, []byte("new")); err != nil {
		t.Errorf("put: unexpected error %s", err)
	}
	mustGet(t, db, "/bin/a.sh", "new")

	if err := db.Put("/bin/b.sh", timestamp.Add(2*time.Hour), []byte("b")); err != nil {
		t.Errorf("put: unexpected error %s", err)
	}

	if err := db.Clean(timestamp.Add(time.Hour)); err != nil {
		t.Errorf("clean: unexpected error %s", err)
	}
	mustMiss(t, db, "/bin/a.sh")
	mustGet(t, db, "/bin/b.sh", "b")

	if err := db.Touch("/bin/b.sh", timestamp.Add(4*time.Hour)); err != nil {
		t.Errorf("touch: unexpected error %s", err)
	}
	if err := db.Clean(timestamp.Add(3 * time.Hour)); err != nil {
		t.Errorf("clean: unexpected error %s", err)
	}
	mustGet(t, db, "/bin/b.sh", "b")
}

func TestCacheValidatesFile(t *testing.T) {
	db, err := execcache.NewDB(path.Join(t.TempDir(), "exec.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	c := execcache.NewCache(db)

	mtime := time.Unix(1700000000, 5)
	if _, ok, err := c.Lookup("/bin/s", mtime, 10); ok || err != nil {
		t.Fatalf("lookup on empty cache: %v %v", ok, err)
	}
	if err := c.Store("/bin/s", mtime, 10, []string{"/bin/sh", "-e"}); err != nil {
		t.Fatal(err)
	}

	interp, ok, err := c.Lookup("/bin/s", mtime, 10)
	if err != nil || !ok {
		t.Fatalf("lookup: %v %v", ok, err)
	}
	if diff := cmp.Diff([]string{"/bin/sh", "-e"}, interp); diff != "" {
		t.Error(diff)
	}

	if _, ok, _ := c.Lookup("/bin/s", mtime, 11); ok {
		t.Error("hit after size change")
	}
	if _, ok, _ := c.Lookup("/bin/s", mtime.Add(time.Second), 10); ok {
		t.Error("hit after mtime change")
	}
	if err := c.Clean(); err != nil {
		t.Error(err)
	}
}
