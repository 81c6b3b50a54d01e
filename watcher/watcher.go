package watcher

// Save-directory monitor.  Watches the game's save directory and
// re-parses any savegame the game writes, pushing the fresh registry to
// a channel.  Useful for keeping an eye on stockpiles while the game is
// running.

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"swgbdump/readers"
	"swgbdump/tables"
	"swgbdump/types"
)

// Update is one re-parse result.  Save is nil when Err is set.
type Update struct {
	Path string
	Save *types.Savegame
	Err  error
}

type Save_watcher interface {
	Start_watching(out chan<- *Update) error
	Stop_watching()
}

func New_watcher(dir string) Save_watcher {
	// 2 seconds is enough for the game to finish writing in practice
	return &dir_watcher{dir: dir, settle: 2 * time.Second}
}

type dir_watcher struct {
	dir     string
	settle  time.Duration
	watcher *fsnotify.Watcher
}

func (dw *dir_watcher) Start_watching(out chan<- *Update) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dw.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) && is_savefile(event.Name) {
					dw.handle_file(event.Name, out)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				out <- &Update{Err: err}
			}
		}
	}()

	err = dw.watcher.Add(dw.dir)
	if err != nil {
		dw.watcher.Close()
	}

	return err
}

func (dw *dir_watcher) Stop_watching() {
	dw.watcher.Close()
}

func is_savefile(name string) bool {
	upper := strings.ToUpper(name)
	for _, ext := range tables.Save_extensions {
		if strings.HasSuffix(upper, ext) {
			return true
		}
	}
	return false
}

func (dw *dir_watcher) handle_file(path string, out chan<- *Update) {
	// Wait for the game itself to finish with the file
	time.Sleep(dw.settle)

	sg, err := readers.Read_savegame(path, nil)
	if err != nil {
		out <- &Update{Path: path, Err: err}
		return
	}
	out <- &Update{Path: path, Save: sg}
}
