package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "standupbot/pkg/logx"
)

// fileStore keeps the tree in memory and makes it durable with two files:
//   - <prefix>.snapshot.json (full tree, rewritten on compaction)
//   - <prefix>.journal.jsonl (append-only batches written before they apply)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger
	now func() time.Time

	mu sync.Mutex

	tree         memTree
	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int
}

type journalBatch struct {
	At     int64   `json:"at"`
	Writes []write `json:"writes"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	tree := memTree{root: map[string]any{}}
	if err := loadSnapshot(snapPath, &tree); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	n, err := replayJournal(journalPath, &tree)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("replayed", n))

	return &fileStore{
		log:          log,
		now:          time.Now,
		tree:         tree,
		snapshotPath: snapPath,
		journal:      jf,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) Get(ctx context.Context, path string) (any, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.tree.get(p), nil
}

func (s *fileStore) Set(ctx context.Context, path string, value any) error {
	ws, err := prepareSet(path, value, s.now())
	if err != nil {
		return err
	}
	return s.apply(ws)
}

func (s *fileStore) Update(ctx context.Context, path string, children map[string]any) error {
	ws, err := prepareUpdate(path, children, s.now())
	if err != nil {
		return err
	}
	return s.apply(ws)
}

func (s *fileStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *fileStore) apply(ws []write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(journalBatch{At: s.now().UnixMilli(), Writes: ws}); err != nil {
		return err
	}
	s.tree.apply(ws)
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort: the journal still holds everything if this fails.
		if err := s.compactLocked(); err != nil {
			s.log.Warn("store compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.tree.root); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, tree *memTree) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var root map[string]any
	if err := json.NewDecoder(f).Decode(&root); err != nil {
		return err
	}
	if root != nil {
		tree.root = root
	}
	return nil
}

// replayJournal applies journal batches in order. A torn trailing line
// (crash mid-write) is skipped.
func replayJournal(path string, tree *memTree) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		var b journalBatch
		if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
			continue
		}
		tree.apply(b.Writes)
		n++
	}
	return n, sc.Err()
}
