package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const instructionDebounce = 100 * time.Millisecond

// InstructionSource serves the prompt optimizer's system instruction.
// When backed by a file the instruction is reloaded whenever the file changes.
type InstructionSource struct {
	mu       sync.RWMutex
	text     string
	fallback string
	path     string

	watcher *fsnotify.Watcher
	onError func(error)
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewInstructionSource serves text from path when set, else the inline fallback.
func NewInstructionSource(inline, path string) (*InstructionSource, error) {
	s := &InstructionSource{
		text:     strings.TrimSpace(inline),
		fallback: strings.TrimSpace(inline),
	}
	if path == "" {
		return s, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("instruction path: %w", err)
	}
	s.path = abs
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Instruction returns the current system instruction.
func (s *InstructionSource) Instruction() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Path is the watched file, empty for inline instructions.
func (s *InstructionSource) Path() string { return s.path }

// OnError registers a callback for reload and watcher errors.
func (s *InstructionSource) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *InstructionSource) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read instruction %s: %w", s.path, err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = s.fallback
	}
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	return nil
}

func (s *InstructionSource) report(err error) {
	s.mu.RLock()
	fn := s.onError
	s.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Watch starts reloading on file changes until ctx ends or Close is called.
// It is a no-op for inline instructions.
func (s *InstructionSource) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		return fmt.Errorf("instruction watcher already running")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}
	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		s.mu.Unlock()
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx, watcher)
	return nil
}

func (s *InstructionSource) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(s.done)
	name := filepath.Base(s.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(instructionDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := s.reload(); err != nil {
					s.report(err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.report(err)
		}
	}
}

// Close stops the watcher. The last loaded instruction stays available.
func (s *InstructionSource) Close() error {
	s.mu.Lock()
	watcher, cancel, done := s.watcher, s.cancel, s.done
	s.watcher = nil
	s.mu.Unlock()
	if watcher == nil {
		return nil
	}
	cancel()
	err := watcher.Close()
	<-done
	return err
}
