package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
	"github.com/reeltally/api/internal/projection"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	castVoteTimeout = 10 * time.Second
)

// StreamHandler upgrades /api/stream connections. Each connection is one view
// instance: it owns a projection.View, watches items on demand, and drives
// votes through the engine while the projection repaints optimistically.
type StreamHandler struct {
	subs     ports.Subscriptions
	votes    ports.VoteService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewStreamHandler(subs ports.Subscriptions, votes ports.VoteService, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		subs:  subs,
		votes: votes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.With().Str("component", "stream").Logger(),
	}
}

// clientFrame is what the view sends: watch/unwatch an item, or vote on it.
type clientFrame struct {
	Type string `json:"type"`
	Item string `json:"item"`
	Vote string `json:"vote,omitempty"`
}

// stateFrame carries the full projection for one item; the view renders it
// as-is and never applies deltas.
type stateFrame struct {
	Type string `json:"type"`
	Item string `json:"item"`
	domain.ViewProjection
}

type errorFrame struct {
	Type  string `json:"type"`
	Item  string `json:"item,omitempty"`
	Error string `json:"error"`
}

func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, authed := r.Context().Value(UserIDKey).(uuid.UUID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &session{
		handler: h,
		conn:    conn,
		userID:  userID,
		authed:  authed,
		view:    projection.NewView(),
		send:    make(chan interface{}, 64),
		unsubs:  make(map[string][]ports.Unsubscribe),
	}

	go s.writePump()
	s.readPump()
}

// session is one live view. readPump owns watched/unsubs; fan-out callbacks
// and vote goroutines reach the connection only through enqueue, which is
// guarded by sendMu so a late delivery after teardown is a no-op instead of a
// send on a closed channel.
type session struct {
	handler *StreamHandler
	conn    *websocket.Conn
	userID  uuid.UUID
	authed  bool
	view    *projection.View
	unsubs  map[string][]ports.Unsubscribe

	sendMu     sync.Mutex
	send       chan interface{}
	sendClosed bool
}

func (s *session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		if frame.Item == "" {
			s.enqueue(errorFrame{Type: "error", Error: "missing item"})
			continue
		}

		switch frame.Type {
		case "watch":
			s.watch(frame.Item)
		case "unwatch":
			s.unwatch(frame.Item)
		case "vote":
			s.vote(frame.Item, frame.Vote)
		default:
			s.enqueue(errorFrame{Type: "error", Item: frame.Item, Error: "unknown frame type"})
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// watch begins projecting an item: one tally subscription, plus the viewer's
// own vote when authenticated. The initial state frame shows zeros until the
// manager's snapshot arrives.
func (s *session) watch(itemID string) {
	if _, ok := s.unsubs[itemID]; ok {
		return
	}

	p := s.view.Watch(itemID)
	s.enqueue(stateFrame{Type: "state", Item: itemID, ViewProjection: p})

	unsubTally := s.handler.subs.SubscribeTally(itemID, func(tally domain.Tally, err error) {
		if err != nil {
			// State unknown: keep the local projection rather than showing
			// wrong numbers.
			s.enqueue(errorFrame{Type: "error", Item: itemID, Error: "tally state unknown"})
			return
		}
		if p, ok := s.view.OnServerTally(itemID, tally); ok {
			s.enqueue(stateFrame{Type: "state", Item: itemID, ViewProjection: p})
		}
	})
	subs := []ports.Unsubscribe{unsubTally}

	if s.authed {
		unsubVote := s.handler.subs.SubscribeUserVote(s.userID, itemID, func(vote *domain.VoteType, err error) {
			if err != nil {
				s.enqueue(errorFrame{Type: "error", Item: itemID, Error: "vote state unknown"})
				return
			}
			if p, ok := s.view.OnServerUserVote(itemID, vote); ok {
				s.enqueue(stateFrame{Type: "state", Item: itemID, ViewProjection: p})
			}
		})
		subs = append(subs, unsubVote)
	}

	s.unsubs[itemID] = subs
}

func (s *session) unwatch(itemID string) {
	for _, unsub := range s.unsubs[itemID] {
		unsub()
	}
	delete(s.unsubs, itemID)
	s.view.Unwatch(itemID)
}

// vote repaints the projection speculatively, then runs the transaction in
// the background. A failed transaction changes nothing locally: the next
// server notification carries the unchanged truth and corrects the
// projection on its own.
func (s *session) vote(itemID, voteStr string) {
	if !s.authed {
		s.enqueue(errorFrame{Type: "error", Item: itemID, Error: "sign in to vote"})
		return
	}
	requested, err := domain.ParseVoteType(voteStr)
	if err != nil {
		s.enqueue(errorFrame{Type: "error", Item: itemID, Error: err.Error()})
		return
	}

	p, ok := s.view.ApplyLocalVote(itemID, requested)
	if !ok {
		s.enqueue(errorFrame{Type: "error", Item: itemID, Error: "item not watched"})
		return
	}
	s.enqueue(stateFrame{Type: "state", Item: itemID, ViewProjection: p})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), castVoteTimeout)
		defer cancel()

		_, err := s.handler.votes.CastVote(ctx, ports.CastVoteInput{
			UserID: s.userID,
			ItemID: itemID,
			Vote:   requested,
		})
		if err != nil {
			s.handler.log.Warn().Err(err).Str("item_id", itemID).Msg("vote failed, awaiting server correction")
			s.enqueue(errorFrame{Type: "error", Item: itemID, Error: "vote failed"})
		}
	}()
}

// enqueue never blocks; a view too slow to drain its send buffer loses
// frames, and the next full-state frame makes it whole again. After teardown
// it drops everything, so a vote goroutine or fan-out callback that outlives
// the connection cannot hit the closed channel.
func (s *session) enqueue(frame interface{}) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return
	}
	select {
	case s.send <- frame:
	default:
		s.handler.log.Warn().Msg("dropping frame for slow stream consumer")
	}
}

func (s *session) teardown() {
	for itemID := range s.unsubs {
		for _, unsub := range s.unsubs[itemID] {
			unsub()
		}
	}

	s.sendMu.Lock()
	s.sendClosed = true
	close(s.send)
	s.sendMu.Unlock()

	_ = s.conn.Close()
}
