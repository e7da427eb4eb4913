package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWorkaroundTableParsesKnownNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wa.json")

	if err := os.WriteFile(path, []byte(`{"ForceEvenGRFAlign": true, "NotARealWorkaround": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl, err := LoadWorkaroundTable(path)
	if err != nil {
		t.Fatal(err)
	}

	if !tbl.Enabled(WAForceEvenGRFAlign) {
		t.Fatal("expected ForceEvenGRFAlign to be enabled")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wa.json")

	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}

	defer w.Close()

	if w.Current().Enabled(WANoIndirectSpill) {
		t.Fatal("initial table should have the workaround disabled")
	}

	if err := os.WriteFile(path, []byte(`{"NoIndirectSpill": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)

	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if w.Current().Enabled(WANoIndirectSpill) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the watcher to reload the updated table")
		}
	}
}
