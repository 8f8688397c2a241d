package accumulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

const (
	nodePrefix = "node/"
	statPrefix = "stat/"
)

func nodeKey(id string) []byte { return []byte(nodePrefix + id) }

// statKeyPrefix ends in a NUL so that node "a" does not see the statistics
// of node "ab".
func statKeyPrefix(id string) []byte { return []byte(statPrefix + id + "\x00") }

func statKey(id, key string) []byte {
	return append(statKeyPrefix(id), key...)
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	Dir      string
	InMemory bool
	Logger   logging.Logger
}

// BadgerStore keeps node documents and their statistics in an embedded
// badger database. Each statistic is its own key, written in its own synced
// transaction, so memory stays bounded however many pairs a node is on.
type BadgerStore struct {
	db     *badger.DB
	dir    string
	logger logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewBadgerStore opens (or creates) a badger database at opts.Dir.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	logger := logging.OrNop(opts.Logger).With(logging.Component("accumulator"), logging.String("backend", BackendBadger))

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, NewError("open").Context(BackendBadger).Cause(errors.New("directory is required")).Err()
		}
		bopts = badger.DefaultOptions(opts.Dir).WithSyncWrites(true)
	}
	bopts = bopts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, NewError("open").Context(opts.Dir).Cause(err).Err()
	}
	logger.Info("accumulator database opened", logging.Path(opts.Dir), logging.Bool("in_memory", opts.InMemory))
	return &BadgerStore{db: db, dir: opts.Dir, logger: logger}, nil
}

// Backend labels the store's metrics.
func (s *BadgerStore) Backend() string { return BackendBadger }

// PutNode writes doc and drops every statistic stored for its node.
func (s *BadgerStore) PutNode(doc surface.NodeDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return NewError("put_node").Node(doc.ID).Cause(ErrStoreClosed).Err()
	}

	doc.Stats = nil
	value, err := json.Marshal(doc)
	if err != nil {
		return NewError("put_node").Node(doc.ID).Cause(err).Err()
	}

	var stale [][]byte
	prefix := statKeyPrefix(doc.ID)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return NewError("put_node").Node(doc.ID).Cause(err).Err()
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return NewError("put_node").Node(doc.ID).Cause(err).Err()
		}
	}
	if err := wb.Set(nodeKey(doc.ID), value); err != nil {
		return NewError("put_node").Node(doc.ID).Cause(err).Err()
	}
	if err := wb.Flush(); err != nil {
		return NewError("put_node").Node(doc.ID).Cause(err).Err()
	}
	return nil
}

// PutStat records stat under key in a single transaction.
func (s *BadgerStore) PutStat(nodeID, key string, stat surface.PairStat) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return NewError("put_stat").Node(nodeID).Key(key).Cause(ErrStoreClosed).Err()
	}

	value, err := json.Marshal(stat)
	if err != nil {
		return NewError("put_stat").Node(nodeID).Key(key).Cause(err).Err()
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(nodeID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoDocument
			}
			return err
		}
		return txn.Set(statKey(nodeID, key), value)
	})
	if err != nil {
		return NewError("put_stat").Node(nodeID).Key(key).Cause(err).Err()
	}
	return nil
}

// Stats calls fn for every statistic of nodeID in key order.
func (s *BadgerStore) Stats(nodeID string, fn func(key string, stat surface.PairStat) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return NewError("stats").Node(nodeID).Cause(ErrStoreClosed).Err()
	}

	prefix := statKeyPrefix(nodeID)
	return s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(nodeKey(nodeID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				err = ErrNoDocument
			}
			return NewError("stats").Node(nodeID).Cause(err).Err()
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			var stat surface.PairStat
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stat)
			})
			if err != nil {
				return NewError("stats").Node(nodeID).Key(key).Cause(fmt.Errorf("%w: %v", ErrCorruptDocument, err)).Err()
			}
			if err := fn(key, stat); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load assembles the full document of nodeID, statistics included.
func (s *BadgerStore) Load(nodeID string) (surface.NodeDocument, error) {
	s.mu.RLock()
	var doc surface.NodeDocument
	err := func() error {
		defer s.mu.RUnlock()
		if s.closed {
			return ErrStoreClosed
		}
		return s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(nodeKey(nodeID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoDocument
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				if err := json.Unmarshal(val, &doc); err != nil {
					return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
				}
				return nil
			})
		})
	}()
	if err != nil {
		return doc, NewError("load").Node(nodeID).Cause(err).Err()
	}

	err = s.Stats(nodeID, func(key string, stat surface.PairStat) error {
		if doc.Stats == nil {
			doc.Stats = make(map[string]surface.PairStat)
		}
		doc.Stats[key] = stat
		return nil
	})
	return doc, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return NewError("close").Context(s.dir).Cause(err).Err()
	}
	return nil
}

// badgerLogger routes badger's printf-style logging into the structured
// logger. Badger's info chatter is demoted to debug.
type badgerLogger struct {
	logger logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
