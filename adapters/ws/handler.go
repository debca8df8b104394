// Package ws provides the bundled WebSocket transport adapter. Each
// connection runs one read loop; every frame dispatches as its own
// call, and subscription streams are pumped to the client until the
// stream ends or the connection drops.
package ws

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/artpar/rpcgate/core/call"
	"github.com/artpar/rpcgate/core/router"
	"github.com/artpar/rpcgate/core/rpcerror"
	"github.com/artpar/rpcgate/core/subscription"
	"github.com/artpar/rpcgate/ports"
)

// Frame is a client request: a call id chosen by the client, the
// procedure path, and the raw input.
type Frame struct {
	ID    string         `json:"id"`
	Path  string         `json:"path"`
	Input map[string]any `json:"input,omitempty"`
}

// Reply is a server response frame. For subscriptions, one Reply with
// Item set is sent per stream element, then a final Reply with Done.
type Reply struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  any             `json:"data,omitempty"`
	Item  any             `json:"item,omitempty"`
	Done  bool            `json:"done,omitempty"`
	Error *rpcerror.Error `json:"error,omitempty"`
}

// Handler serves RPC calls over WebSocket connections.
type Handler struct {
	table    *router.Table
	logger   zerolog.Logger
	ids      ports.IDGenerator
	clock    ports.Clock
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket adapter over a routing table.
func NewHandler(table *router.Table, logger zerolog.Logger, ids ports.IDGenerator, clock ports.Clock) *Handler {
	return &Handler{
		table:  table,
		logger: logger,
		ids:    ids,
		clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the connection and runs the read loop until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := &session{
		handler: h,
		conn:    conn,
		remote:  remoteIP(r),
	}

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		go session.dispatch(ctx, frame)
	}
}

// session serialises writes for one connection.
type session struct {
	handler *Handler
	conn    *websocket.Conn
	remote  string
	writeMu sync.Mutex
}

func (s *session) dispatch(ctx context.Context, frame Frame) {
	h := s.handler
	c := call.New(call.TransportWebSocket).
		WithRawSocket(s.conn).
		WithMeta(call.MetaRequestID, h.ids.New()).
		WithMeta(call.MetaRemoteIP, s.remote).
		WithMeta(call.MetaStartedAt, h.clock.Now())

	value, err := h.table.Call(ctx, c, frame.Path, frame.Input)
	if err != nil {
		s.write(Reply{ID: frame.ID, OK: false, Error: rpcerror.From(err)})
		return
	}

	if stream, ok := value.(*subscription.Stream); ok {
		s.pump(ctx, frame.ID, stream)
		return
	}

	s.write(Reply{ID: frame.ID, OK: true, Data: value})
}

// pump forwards stream items to the client until the stream closes or
// the connection context is cancelled.
func (s *session) pump(ctx context.Context, id string, stream *subscription.Stream) {
	defer stream.Close()

	for {
		item, err := stream.Next(ctx)
		if err != nil {
			s.write(Reply{ID: id, OK: true, Done: true})
			return
		}
		if !s.write(Reply{ID: id, OK: true, Item: item}) {
			return
		}
	}
}

func (s *session) write(reply Reply) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(reply); err != nil {
		s.handler.logger.Debug().Err(err).Msg("websocket write error")
		return false
	}
	return true
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
