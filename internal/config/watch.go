package config

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// wireWorkaroundTable is the on-disk JSON shape a workaround-table file
// hot-reloads from: a flat map from the enumeration's string name to its
// boolean state, the simplest encoding that round-trips through
// encoding/json without a custom (Un)MarshalJSON.
type wireWorkaroundTable map[string]bool

var workaroundNames = map[Workaround]string{
	WANoIndirectSpill:         "NoIndirectSpill",
	WAForceEvenGRFAlign:       "ForceEvenGRFAlign",
	WAReserveExtraDebugGRF:    "ReserveExtraDebugGRF",
	WADisableSpillCompression: "DisableSpillCompression",
}

var workaroundsByName = func() map[string]Workaround {
	out := make(map[string]Workaround, len(workaroundNames))
	for k, v := range workaroundNames {
		out[v] = k
	}

	return out
}()

// LoadWorkaroundTable reads a JSON-encoded workaround table from path.
func LoadWorkaroundTable(path string) (*WorkaroundTable, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wire wireWorkaroundTable
	if err := json.Unmarshal(buf, &wire); err != nil {
		return nil, err
	}

	t := NewWorkaroundTable()

	for name, on := range wire {
		if wa, ok := workaroundsByName[name]; ok {
			t = t.Set(wa, on)
		}
	}

	return t, nil
}

// Watcher holds the most recently loaded WorkaroundTable for path,
// reloading it whenever the file changes on disk. Modeled directly on
// the runtime virtual filesystem's fsnotify watcher: a background
// goroutine drains fsnotify's event channel and republishes under an
// atomic pointer so readers never block on the reload.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	current atomic.Pointer[WorkaroundTable]
	errC    chan error
	done    chan struct{}
}

// NewWatcher loads path once, starts watching it for writes, and
// returns a Watcher whose Current() always reflects the latest
// successfully parsed table.
func NewWatcher(path string) (*Watcher, error) {
	initial, err := LoadWorkaroundTable(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()

		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, errC: make(chan error, 1), done: make(chan struct{})}
	w.current.Store(initial)

	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			t, err := LoadWorkaroundTable(w.path)
			if err != nil {
				select {
				case w.errC <- err:
				default:
				}

				continue
			}

			w.current.Store(t)

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently successfully loaded table.
func (w *Watcher) Current() *WorkaroundTable { return w.current.Load() }

// Errors surfaces reload failures (e.g. malformed JSON after an
// in-progress write); callers that don't care may ignore the channel.
func (w *Watcher) Errors() <-chan error { return w.errC }

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done

	return err
}
