// Package tools implements the MCP tool surface of loom: parameter-validating
// handlers over the storage, dependency and workflow layers, each returning a
// uniform JSON envelope.
//
// Handlers come in two flavours. Batch handlers (manage_items update,
// manage_notes upsert, advance_item, complete_tree) process elements
// independently, accumulate failures and return success at the envelope
// level. Atomic handlers (item/work-tree creation, dependency creation)
// run inside one transaction and fail the whole envelope on any sub-error.
package tools

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/deps"
	"github.com/loomhq/loom/internal/noteschema"
	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/workflow"
)

// Selection bounds for get_next_item.
const (
	DefaultNextLimit        = 1
	MaxNextLimit            = 20
	DefaultNextCandidateCap = 200
)

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	// Version is stamped into every envelope's metadata.
	Version string
	// NextCandidateCap bounds how many queue items get_next_item considers.
	NextCandidateCap int
	// MaxChainDepth bounds dependency chain traversal in query_dependencies.
	MaxChainDepth int
	Logger        *zap.Logger
}

// Service holds the dependencies shared by every tool handler. It is
// stateless beyond them and safe for concurrent use.
type Service struct {
	store    storage.Storage
	deps     *deps.Engine
	workflow *workflow.Engine
	schemas  *noteschema.Registry
	log      *zap.Logger

	version          string
	nextCandidateCap int
	maxChainDepth    int
}

// NewService wires the tool handlers to their collaborators.
func NewService(store storage.Storage, depEngine *deps.Engine, wfEngine *workflow.Engine, schemas *noteschema.Registry, opts Options) *Service {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.NextCandidateCap <= 0 {
		opts.NextCandidateCap = DefaultNextCandidateCap
	}
	if opts.MaxChainDepth <= 0 {
		opts.MaxChainDepth = deps.MaxChainDepth
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:            store,
		deps:             depEngine,
		workflow:         wfEngine,
		schemas:          schemas,
		log:              opts.Logger,
		version:          opts.Version,
		nextCandidateCap: opts.NextCandidateCap,
		maxChainDepth:    opts.MaxChainDepth,
	}
}

// decodeArgs unmarshals raw tool arguments into a typed args struct,
// converting malformed JSON and type mismatches into ValidationErrors.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return validationf("invalid arguments: %v", err)
	}
	return nil
}

// requireUUID validates a required id-shaped parameter.
func requireUUID(field, value string) (string, error) {
	if value == "" {
		return "", validationf("%s is required", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return "", validationf("%s must be a valid UUID (got %q)", field, value)
	}
	return value, nil
}

// optionalUUID validates an id-shaped parameter when present.
func optionalUUID(field, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return requireUUID(field, value)
}

func newID() string {
	return uuid.NewString()
}
