package tracker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

// FileTracker keeps one token per line in a flat file. Every mutation
// re-reads the file and replaces it atomically, so readers see either the
// old or the new set. The mutex serializes writers inside one process
// only; two processes can still lose each other's update.
type FileTracker struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileTracker returns a tracker backed by path. The file is created on
// the first write.
func NewFileTracker(path string, logger *zap.Logger) *FileTracker {
	return &FileTracker{path: path, logger: logger}
}

func (t *FileTracker) IsOpen(_ context.Context, thread domain.ThreadKey) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, err := t.load()
	if err != nil {
		return false, err
	}
	_, ok := set[thread.Token()]
	return ok, nil
}

func (t *FileTracker) MarkOpen(_ context.Context, thread domain.ThreadKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, err := t.load()
	if err != nil {
		return err
	}
	set[thread.Token()] = struct{}{}
	if err := t.save(set); err != nil {
		return err
	}
	t.logger.Debug("thread marked open", zap.String("thread", thread.String()), zap.Int("open", len(set)))
	return nil
}

func (t *FileTracker) MarkClosed(_ context.Context, thread domain.ThreadKey) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, err := t.load()
	if err != nil {
		return 0, err
	}
	token := thread.Token()
	removed := 0
	for line := range set {
		if strings.Contains(line, token) {
			delete(set, line)
			removed++
		}
	}
	if err := t.save(set); err != nil {
		return 0, err
	}
	if removed > 1 {
		t.logger.Warn("closing thread removed several tracker entries",
			zap.String("thread", thread.String()), zap.Int("removed", removed))
	}
	return removed, nil
}

func (t *FileTracker) List(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, err := t.load()
	if err != nil {
		return nil, err
	}
	return sortedTokens(set), nil
}

func (t *FileTracker) load() (map[string]struct{}, error) {
	set := make(map[string]struct{})
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tracker file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), " \t\r"); line != "" {
			set[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tracker file: %w", err)
	}
	return set, nil
}

func (t *FileTracker) save(set map[string]struct{}) error {
	var b strings.Builder
	for _, token := range sortedTokens(set) {
		b.WriteString(token)
		b.WriteByte('\n')
	}
	if err := atomic.WriteFile(t.path, strings.NewReader(b.String())); err != nil {
		return fmt.Errorf("write tracker file: %w", err)
	}
	return nil
}

func sortedTokens(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for token := range set {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}
