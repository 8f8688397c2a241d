package accumulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

const (
	jsonExt   = ".json"
	snappyExt = ".json.sz"
)

// unsafeNameChars percent-escapes the characters a file name cannot hold.
// Escaping "%" itself keeps distinct ids in distinct files.
var unsafeNameChars = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C", "\x00", "%00")

// FileName returns the document file name for a node id. Path separators
// and "%" are percent-escaped, as is an id of "." or "..".
func FileName(nodeID string, compressed bool) string {
	name := unsafeNameChars.Replace(nodeID)
	if name == "." || name == ".." {
		name = strings.ReplaceAll(name, ".", "%2E")
	}
	if compressed {
		return name + snappyExt
	}
	return name + jsonExt
}

// FileOptions configures a FileStore.
type FileOptions struct {
	Compress bool
	Logger   logging.Logger
}

// FileStore keeps one JSON document per node in a directory. Every update
// rewrites the whole document through a synced temporary file and an atomic
// rename, so a crash leaves either the old or the new document.
type FileStore struct {
	dir      string
	compress bool
	logger   logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts FileOptions) (*FileStore, error) {
	if dir == "" {
		return nil, NewError("open").Context("files").Cause(errors.New("directory is required")).Err()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewError("open").Context(dir).Cause(err).Err()
	}
	return &FileStore{
		dir:      dir,
		compress: opts.Compress,
		logger:   logging.OrNop(opts.Logger).With(logging.Component("accumulator"), logging.Path(dir)),
	}, nil
}

// Backend labels the store's metrics.
func (s *FileStore) Backend() string { return BackendFiles }

// Dir returns the directory holding the documents.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the document path of a node.
func (s *FileStore) Path(nodeID string) string {
	return filepath.Join(s.dir, FileName(nodeID, s.compress))
}

// PutNode writes doc, discarding any statistics previously stored for it.
func (s *FileStore) PutNode(doc surface.NodeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError("put_node").Node(doc.ID).Cause(ErrStoreClosed).Err()
	}
	doc.Stats = nil
	if err := s.write(doc); err != nil {
		return NewError("put_node").Node(doc.ID).Cause(err).Err()
	}
	return nil
}

// PutStat reads the node's document, sets key and rewrites it durably.
func (s *FileStore) PutStat(nodeID, key string, stat surface.PairStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError("put_stat").Node(nodeID).Key(key).Cause(ErrStoreClosed).Err()
	}

	doc, err := s.read(nodeID)
	if err != nil {
		return NewError("put_stat").Node(nodeID).Key(key).Cause(err).Err()
	}
	if doc.Stats == nil {
		doc.Stats = make(map[string]surface.PairStat)
	}
	doc.Stats[key] = stat
	if err := s.write(doc); err != nil {
		return NewError("put_stat").Node(nodeID).Key(key).Cause(err).Err()
	}
	return nil
}

// Stats calls fn for every statistic of nodeID in key order.
func (s *FileStore) Stats(nodeID string, fn func(key string, stat surface.PairStat) error) error {
	doc, err := s.Load(nodeID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(doc.Stats))
	for k := range doc.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, doc.Stats[k]); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the stored document of nodeID.
func (s *FileStore) Load(nodeID string) (surface.NodeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return surface.NodeDocument{}, NewError("load").Node(nodeID).Cause(ErrStoreClosed).Err()
	}
	doc, err := s.read(nodeID)
	if err != nil {
		return surface.NodeDocument{}, NewError("load").Node(nodeID).Cause(err).Err()
	}
	return doc, nil
}

// Close marks the store closed. Documents stay on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) read(nodeID string) (surface.NodeDocument, error) {
	var doc surface.NodeDocument
	data, err := os.ReadFile(s.Path(nodeID))
	if errors.Is(err, fs.ErrNotExist) {
		return doc, ErrNoDocument
	}
	if err != nil {
		return doc, err
	}
	if s.compress {
		if data, err = snappy.Decode(nil, data); err != nil {
			return doc, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if doc.ID != nodeID {
		return doc, fmt.Errorf("%w: holds node %q", ErrCorruptDocument, doc.ID)
	}
	return doc, nil
}

func (s *FileStore) write(doc surface.NodeDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if s.compress {
		data = snappy.Encode(nil, data)
	}

	path := s.Path(doc.ID)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	s.logger.Debug("node document written", logging.NodeID(doc.ID), logging.Count(len(doc.Stats)))
	return nil
}
