package msflo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PollInterval is how often WaitForFile checks for the file when no
// filesystem event arrives.
var PollInterval = time.Second

// WaitForFile blocks until path exists or ctx is done. The directory of
// path is watched for create and rename events; a poll every PollInterval
// covers filesystems without notifications.
func WaitForFile(ctx context.Context, path string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if exists(path) {
		return nil
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	w, err := fsnotify.NewWatcher()
	if err == nil {
		defer w.Close()
		if err = w.Add(filepath.Dir(path)); err == nil {
			events, errs = w.Events, w.Errors
		}
	}
	if err != nil {
		log.Warn("file watch unavailable, polling", zap.String("dir", filepath.Dir(path)), zap.Error(err))
	}

	tick := time.NewTicker(PollInterval)
	defer tick.Stop()
	want := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == want && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write)) && exists(path) {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn("file watch error", zap.Error(err))
		case <-tick.C:
			if exists(path) {
				return nil
			}
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
