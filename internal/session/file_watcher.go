package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aceinterview/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher calls back whenever a session file changes on disk
type FileWatcher struct {
	mu sync.Mutex

	path        string
	lastModTime time.Time

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	onChange func()
	logger   *errors.Logger

	running bool
}

// NewFileWatcher creates a watcher for path. Bursts of writes within
// debounceDelay collapse into one callback.
func NewFileWatcher(path string, debounceDelay time.Duration, onChange func(), logger *errors.Logger) *FileWatcher {
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	return &FileWatcher{
		path:          filepath.Clean(path),
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		onChange:      onChange,
		logger:        logger,
	}
}

// Start begins watching the file's directory, which also catches atomic renames
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("session file watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(fw.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	fw.fsWatcher = watcher

	if stat, err := os.Stat(fw.path); err == nil {
		fw.lastModTime = stat.ModTime()
	}

	fw.running = true
	go fw.watchLoop()

	if fw.logger != nil {
		fw.logger.Debug("Session file watcher started",
			"file", fw.path,
			"debounce_delay", fw.debounceDelay)
	}
	return nil
}

// Stop stops the watcher; it is safe to call more than once
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.running {
		return nil
	}

	close(fw.stopChan)
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.running = false

	if err := fw.fsWatcher.Close(); err != nil {
		if fw.logger != nil {
			fw.logger.LogError(err, "Failed to close file system watcher")
		}
		return err
	}
	return nil
}

func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcessEvent(event) {
				fw.scheduleReload()
			}

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			if fw.logger != nil {
				fw.logger.LogError(err, "File watcher error")
			}

		case <-fw.reloadChan:
			if fw.hasFileChanged() {
				fw.onChange()
			}

		case <-fw.stopChan:
			return
		}
	}
}

// shouldProcessEvent keeps write, create and rename events for the watched file
func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != fw.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (fw *FileWatcher) hasFileChanged() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	stat, err := os.Stat(fw.path)
	if err != nil {
		return false
	}
	if stat.ModTime().Equal(fw.lastModTime) {
		return false
	}
	fw.lastModTime = stat.ModTime()
	return true
}

func (fw *FileWatcher) scheduleReload() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}

	fw.debounceTimer = time.AfterFunc(fw.debounceDelay, func() {
		select {
		case fw.reloadChan <- struct{}{}:
		default:
		}
	})
}
