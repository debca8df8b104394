// Package http provides the bundled HTTP transport adapter. It maps
// POST /rpc/{path} onto Router.Call, POST /rpc onto Router.Batch, and
// GET /rpc onto the introspection surface. The adapter owns its
// transport concurrency; the engine only sees one call.Context per
// in-flight request.
package http

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/router"
	"github.com/artpar/rpcgate/core/rpcerror"
	"github.com/artpar/rpcgate/core/subscription"
	"github.com/artpar/rpcgate/ports"
)

// Handler serves RPC calls over HTTP.
type Handler struct {
	table  *router.Table
	logger zerolog.Logger
	ids    ports.IDGenerator
	clock  ports.Clock
}

// NewHandler creates an HTTP adapter over a routing table.
func NewHandler(table *router.Table, logger zerolog.Logger, ids ports.IDGenerator, clock ports.Clock) *Handler {
	return &Handler{table: table, logger: logger, ids: ids, clock: clock}
}

// Register adds the adapter's routes onto an existing chi router, so
// a server can co-host other endpoints beside /rpc.
func (h *Handler) Register(r chi.Router) {
	r.Get("/rpc", h.handleList)
	r.Post("/rpc", h.handleBatch)
	r.Post("/rpc/{path}", h.handleCall)
}

// Routes returns a standalone chi router serving only the adapter.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// envelope is the wire shape of every response.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  any             `json:"data,omitempty"`
	Error *rpcerror.Error `json:"error,omitempty"`
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	var input map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.writeError(w, rpcerror.New(rpcerror.KindValidation, "request body is not a JSON object"))
			return
		}
	}

	value, err := h.table.Call(r.Context(), h.buildContext(r), path, input)
	if err != nil {
		h.writeError(w, rpcerror.From(err))
		return
	}

	if _, isStream := value.(*subscription.Stream); isStream {
		h.writeError(w, rpcerror.New(rpcerror.KindValidation,
			"subscriptions require the websocket transport"))
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{OK: true, Data: value})
}

// batchRequest is one element of a batch body.
type batchRequest struct {
	Path  string         `json:"path"`
	Input map[string]any `json:"input"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []batchRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.writeError(w, rpcerror.New(rpcerror.KindValidation, "request body is not a JSON array of calls"))
		return
	}

	calls := make([]router.BatchCall, len(reqs))
	for i, req := range reqs {
		calls[i] = router.BatchCall{Path: req.Path, Input: req.Input}
	}

	results := h.table.Batch(r.Context(), h.buildContext(r), calls)

	envelopes := make([]envelope, len(results))
	for i, res := range results {
		if res.Err != nil {
			envelopes[i] = envelope{OK: false, Error: res.Err}
		} else {
			envelopes[i] = envelope{OK: true, Data: res.Value}
		}
	}
	h.writeJSON(w, http.StatusOK, envelopes)
}

// procedureInfo is one row of the introspection listing.
type procedureInfo struct {
	Path       string   `json:"path"`
	Kind       string   `json:"kind"`
	Unit       string   `json:"unit"`
	Middleware []string `json:"middleware,omitempty"`
}

type aliasInfo struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Deprecated bool   `json:"deprecated"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	paths := h.table.Paths()
	procedures := make([]procedureInfo, 0, len(paths))
	for _, path := range paths {
		entry, _ := h.table.Entry(path)
		mw, _ := h.table.MiddlewareFor(path)
		procedures = append(procedures, procedureInfo{
			Path:       entry.Path,
			Kind:       string(entry.Kind),
			Unit:       entry.Unit,
			Middleware: mw,
		})
	}

	aliases := make([]aliasInfo, 0)
	for _, a := range h.table.Aliases() {
		aliases = append(aliases, aliasInfo{From: a.From, To: a.To, Deprecated: a.Deprecated})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"router":     h.table.Name(),
		"procedures": procedures,
		"aliases":    aliases,
	})
}

func (h *Handler) buildContext(r *http.Request) call.Context {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}
	return call.New(call.TransportHTTP).
		WithRawConn(r).
		WithMeta(call.MetaRequestID, h.ids.New()).
		WithMeta(call.MetaRemoteIP, remoteIP).
		WithMeta(call.MetaStartedAt, h.clock.Now())
}

func (h *Handler) writeError(w http.ResponseWriter, rpcErr *rpcerror.Error) {
	h.writeJSON(w, statusFor(rpcErr.Kind), envelope{OK: false, Error: rpcErr})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("write response")
	}
}

// statusFor maps engine error kinds onto HTTP statuses. Domain kinds
// from handlers map to 400.
func statusFor(kind rpcerror.Kind) int {
	switch kind {
	case rpcerror.KindNotFound:
		return http.StatusNotFound
	case rpcerror.KindInvalidPath:
		return http.StatusBadRequest
	case rpcerror.KindValidation:
		return http.StatusUnprocessableEntity
	case rpcerror.KindTimeout:
		return http.StatusGatewayTimeout
	case rpcerror.KindBatchTooLarge:
		return http.StatusRequestEntityTooLarge
	case rpcerror.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
