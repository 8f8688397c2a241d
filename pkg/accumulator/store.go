// Package accumulator holds the externalized per-node state used by the exact
// shortest-path statistics pass. Every store makes each statistic durable
// before PutStat returns.
package accumulator

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-vre/pkg/logging"
	"github.com/dd0wney/cluso-vre/pkg/surface"
)

// Backend names.
const (
	BackendFiles  = "files"
	BackendBadger = "badger"
)

// Options selects and configures a store.
type Options struct {
	Backend string
	Dir     string
	// Compress snappy-compresses node files. Ignored by badger, which
	// compresses its own tables.
	Compress bool
	// InMemory runs badger without touching disk.
	InMemory bool
	Logger   logging.Logger
}

// Open creates the store named by opts.Backend.
func Open(opts Options) (surface.NodeStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFiles:
		return NewFileStore(opts.Dir, FileOptions{Compress: opts.Compress, Logger: opts.Logger})
	case BackendBadger:
		return NewBadgerStore(BadgerOptions{Dir: opts.Dir, InMemory: opts.InMemory, Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
