package deeplink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const inboxExt = ".url"

// Deliver hands a URL to the running instance watching inboxDir. The file
// is written under a temporary name and renamed so watchers never observe
// a partial write.
func Deliver(inboxDir, rawURL string) error {
	if err := os.MkdirAll(inboxDir, 0700); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	id := uuid.NewString()
	tmp := filepath.Join(inboxDir, "."+id+".tmp")
	final := filepath.Join(inboxDir, id+inboxExt)

	if err := os.WriteFile(tmp, []byte(rawURL), 0600); err != nil {
		return fmt.Errorf("failed to write inbox file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish inbox file: %w", err)
	}
	return nil
}

// Inbox watches a directory for handed-off URLs
type Inbox struct {
	dir     string
	watcher *fsnotify.Watcher
	onURL   func(rawURL string)
	logger  zerolog.Logger
}

// NewInbox creates the inbox directory and starts watching it
func NewInbox(dir string, logger zerolog.Logger, onURL func(rawURL string)) (*Inbox, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch inbox %s: %w", dir, err)
	}

	return &Inbox{
		dir:     dir,
		watcher: watcher,
		onURL:   onURL,
		logger:  logger,
	}, nil
}

// Drain consumes URLs delivered while nobody was watching
func (in *Inbox) Drain() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn().Err(err).Msg("failed to read inbox")
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			in.consume(filepath.Join(in.dir, e.Name()))
		}
	}
}

// Start delivers URLs until ctx is cancelled or the watcher is closed
func (in *Inbox) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				in.consume(event.Name)
			}
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				// Log error but continue watching
				in.logger.Warn().Err(err).Msg("inbox watcher error")
			}
		}
	}
}

// Close stops the watcher
func (in *Inbox) Close() error {
	return in.watcher.Close()
}

func (in *Inbox) consume(path string) {
	if !strings.HasSuffix(path, inboxExt) {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// already consumed by a previous event for the same file
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		in.logger.Warn().Err(err).Str("file", path).Msg("failed to remove inbox file")
	}

	rawURL := strings.TrimSpace(string(data))
	if rawURL != "" {
		in.onURL(rawURL)
	}
}
