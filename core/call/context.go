// Package call provides the per-call context passed through middleware
// chains and into procedure handlers. A Context is built by a transport
// adapter (or a test helper), derived copy-on-write as it moves down
// the chain, and discarded when the call returns. It is never shared
// across concurrent calls.
package call

import (
	"time"

	"github.com/google/uuid"
)

// Transport identifies the transport that originated a call.
type Transport string

const (
	// TransportHTTP marks calls arriving over an HTTP adapter.
	TransportHTTP Transport = "http"
	// TransportWebSocket marks calls arriving over a WebSocket adapter.
	TransportWebSocket Transport = "websocket"
	// TransportNone marks calls with no transport (tests, internal dispatch).
	TransportNone Transport = "none"
)

// Metadata keys set by transports and the dispatch layer.
const (
	MetaRequestID = "request_id"
	MetaRemoteIP  = "remote_ip"
	MetaStartedAt = "started_at"
	MetaTraceID   = "trace_id"
)

// Context is the per-call bag of transport handle, assigns, metadata,
// and current procedure identity.
//
// Context has value semantics: derivation methods return a copy whose
// maps are cloned before mutation, so a middleware writing an assign is
// visible only downstream in its own chain.
type Context struct {
	// Transport is the originating transport kind.
	Transport Transport

	// RawConn is an opaque transport handle (e.g. *http.Request).
	RawConn any

	// RawSocket is an opaque socket handle (e.g. *websocket.Conn).
	RawSocket any

	// ProcedurePath is the canonical dotted path of the procedure being
	// called. Set by dispatch before the executor runs; empty before.
	ProcedurePath string

	// ProcedureKind is the kind of the procedure being called
	// ("query", "mutation", "subscription"). Set by dispatch.
	ProcedureKind string

	assigns  map[string]any
	metadata map[string]any
}

// New creates a Context for the given transport.
func New(transport Transport) Context {
	return Context{Transport: transport}
}

// NewTest creates a Context suitable for tests and internal dispatch:
// no transport, a fresh request id, and a monotonic started-at stamp.
func NewTest() Context {
	return New(TransportNone).
		WithMeta(MetaRequestID, uuid.New().String()).
		WithMeta(MetaStartedAt, time.Now())
}

// WithAssign returns a derived Context with the assign set.
// Assigns carry user-domain data, e.g. the authenticated principal.
func (c Context) WithAssign(key string, value any) Context {
	c.assigns = cloneAndSet(c.assigns, key, value)
	return c
}

// Assign returns the assign stored under key.
func (c Context) Assign(key string) (any, bool) {
	v, ok := c.assigns[key]
	return v, ok
}

// Assigns returns a copy of all assigns.
func (c Context) Assigns() map[string]any {
	return cloneMap(c.assigns)
}

// WithMeta returns a derived Context with the metadata entry set.
// Metadata carries request-scoped infrastructure data (request id,
// remote ip, started-at, trace id).
func (c Context) WithMeta(key string, value any) Context {
	c.metadata = cloneAndSet(c.metadata, key, value)
	return c
}

// Meta returns the metadata entry stored under key.
func (c Context) Meta(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// Metadata returns a copy of all metadata.
func (c Context) Metadata() map[string]any {
	return cloneMap(c.metadata)
}

// RequestID returns the request id metadata entry, or "" if unset.
func (c Context) RequestID() string {
	if v, ok := c.metadata[MetaRequestID]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithProcedure returns a derived Context tagged with the procedure
// identity. Called by dispatch before the executor runs.
func (c Context) WithProcedure(path, kind string) Context {
	c.ProcedurePath = path
	c.ProcedureKind = kind
	return c
}

// WithRawConn returns a derived Context carrying a transport handle.
func (c Context) WithRawConn(conn any) Context {
	c.RawConn = conn
	return c
}

// WithRawSocket returns a derived Context carrying a socket handle.
func (c Context) WithRawSocket(sock any) Context {
	c.RawSocket = sock
	return c
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAndSet(m map[string]any, key string, value any) map[string]any {
	out := cloneMap(m)
	out[key] = value
	return out
}
