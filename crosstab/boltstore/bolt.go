// Package boltstore provides a crosstab.Store shared between processes through
// a BBolt file. Changes made by other processes are picked up with fsnotify.
package boltstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

const (
	bucketName         = "crosstab"
	defaultOpenTimeout = 2 * time.Second
)

// record is the stored form of a value. Removals are kept as tombstones so
// that the writer of a removal is known to every reader.
type record struct {
	Value   string `json:"value,omitempty"`
	Writer  string `json:"writer"`
	Removed bool   `json:"removed,omitempty"`
	Seq     uint64 `json:"seq"`
}

// Store implements crosstab.Store on a BBolt file. The database is opened
// per operation so several processes can share the file.
type Store struct {
	path        string
	id          string
	openTimeout time.Duration
	logger      zerolog.Logger
	watcher     *fsnotify.Watcher

	mu       sync.Mutex
	snapshot map[string]record
	subs     map[int]func(crosstab.Change)
	nextID   int
	closed   bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ crosstab.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTabID sets the identifier recorded on this handle's writes.
func WithTabID(id string) Option {
	return func(s *Store) {
		s.id = id
	}
}

// WithOpenTimeout bounds how long an operation waits for the file lock.
func WithOpenTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.openTimeout = timeout
	}
}

// New opens (creating if needed) the store at path and starts watching it.
func New(path string, options ...Option) (*Store, error) {
	s := &Store{
		path:        filepath.Clean(path),
		id:          uuid.New().String(),
		openTimeout: defaultOpenTimeout,
		logger:      zerolog.Nop(),
		snapshot:    make(map[string]record),
		subs:        make(map[int]func(crosstab.Change)),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "boltstore").Str("tab", s.id).Logger()

	if err := s.update(func(b *bbolt.Bucket) error { return nil }); err != nil {
		return nil, fmt.Errorf("opening bbolt store: %w", err)
	}
	snapshot, err := s.readAll()
	if err != nil {
		return nil, err
	}
	s.snapshot = snapshot

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.watch()
	return s, nil
}

// ID identifies this handle's writes.
func (s *Store) ID() string {
	return s.id
}

// Close stops the watcher. Operations after Close fail with ErrStoreClosed.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.subs = make(map[int]func(crosstab.Change))
		s.mu.Unlock()

		close(s.stopCh)
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Store) Get(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, errors.ErrStoreClosed
	}
	var rec *record
	err := s.view(func(b *bbolt.Bucket) error {
		r, err := decode(b.Get([]byte(key)))
		rec = r
		return err
	})
	if err != nil {
		return "", false, err
	}
	if rec == nil || rec.Removed {
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (s *Store) Set(key, value string) error {
	if s.isClosed() {
		return errors.ErrStoreClosed
	}
	var written record
	err := s.update(func(b *bbolt.Bucket) error {
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		written = record{Value: value, Writer: s.id, Seq: seq}
		return put(b, key, written)
	})
	if err != nil {
		return fmt.Errorf("boltstore set %s: %w", key, err)
	}
	s.remember(key, written)
	return nil
}

func (s *Store) Remove(key string) error {
	if s.isClosed() {
		return errors.ErrStoreClosed
	}
	var written *record
	err := s.update(func(b *bbolt.Bucket) error {
		existing, err := decode(b.Get([]byte(key)))
		if err != nil {
			return err
		}
		if existing == nil || existing.Removed {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		written = &record{Writer: s.id, Removed: true, Seq: seq}
		return put(b, key, *written)
	})
	if err != nil {
		return fmt.Errorf("boltstore remove %s: %w", key, err)
	}
	if written != nil {
		s.remember(key, *written)
	}
	return nil
}

func (s *Store) Subscribe(fn func(crosstab.Change)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) remember(key string, rec record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.snapshot[key]; ok && prev.Seq > rec.Seq {
		return
	}
	s.snapshot[key] = rec
}

// watch resyncs after every write to the database file.
func (s *Store) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.sync()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// sync diffs the database against the last snapshot and delivers the
// changes written by other handles, oldest first.
func (s *Store) sync() {
	current, err := s.readAll()
	if err != nil {
		s.logger.Warn().Err(err).Msg("resync failed")
		return
	}

	type pending struct {
		seq    uint64
		change crosstab.Change
	}
	var changes []pending

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for key, rec := range current {
		prev, seen := s.snapshot[key]
		if seen && rec.Seq <= prev.Seq {
			continue
		}
		s.snapshot[key] = rec
		if rec.Writer == s.id {
			continue
		}
		c := crosstab.Change{Key: key}
		if seen && !prev.Removed {
			c.OldValue = prev.Value
		}
		if rec.Removed {
			if !seen || prev.Removed {
				continue
			}
			c.Removed = true
		} else {
			c.NewValue = rec.Value
		}
		changes = append(changes, pending{seq: rec.Seq, change: c})
	}
	subs := make([]func(crosstab.Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].seq < changes[j].seq })
	for _, p := range changes {
		s.logger.Debug().Str("key", p.change.Key).Bool("removed", p.change.Removed).Msg("foreign change")
		for _, fn := range subs {
			fn(p.change)
		}
	}
}

func (s *Store) readAll() (map[string]record, error) {
	records := make(map[string]record)
	err := s.view(func(b *bbolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			rec, err := decode(v)
			if err != nil {
				return err
			}
			if rec != nil {
				records[string(k)] = *rec
			}
			return nil
		})
	})
	return records, err
}

func (s *Store) view(fn func(b *bbolt.Bucket) error) error {
	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: s.openTimeout, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("opening bbolt db: %w", err)
	}
	defer db.Close()
	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

func (s *Store) update(fn func(b *bbolt.Bucket) error) error {
	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: s.openTimeout})
	if err != nil {
		return fmt.Errorf("opening bbolt db: %w", err)
	}
	defer db.Close()
	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func decode(data []byte) (*record, error) {
	if data == nil {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

func put(b *bbolt.Bucket, key string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
