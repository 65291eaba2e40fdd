// Package fswatch watches a checkout for filesystem changes and delivers
// them in debounced batches, so one save-all in an editor triggers one sync
// instead of dozens.
package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/aemtools/aemcli/pkg/errors"
)

// Watch watches root and everything below it. Change paths are collected
// until the stream has been quiet for the debounce interval, then handed to
// onBatch as a sorted list. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, root string, debounce time.Duration,
	onBatch func(paths []string)) error {

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithContext(err, "create watcher")
	}
	defer watcher.Close()

	if err := watchRecursively(watcher, root); err != nil {
		return err
	}

	pending := map[string]bool{}
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// New directories have to be watched before anything inside
			// them changes.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchRecursively(watcher, event.Name); err != nil {
						log.WithError(err).WithField("path", event.Name).
							Warn("Failed to watch new directory.")
					}
				}
			}

			pending[event.Name] = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Watcher reported an error.")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			var paths []string
			for path := range pending {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			pending = map[string]bool{}
			onBatch(paths)

		case <-ctx.Done():
			return nil
		}
	}
}

func watchRecursively(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.WithError(err).WithField("path", path).
				Warn("Failed to read entry while setting up watches.")
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return errors.WithContext(err, "watch "+path)
		}
		return nil
	})
}
