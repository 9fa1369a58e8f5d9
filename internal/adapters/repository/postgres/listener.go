package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
	"github.com/rs/zerolog"
)

const (
	tallyChannel    = "tally_events"
	userVoteChannel = "user_vote_events"

	listenMinReconnect = 500 * time.Millisecond
	listenMaxReconnect = 30 * time.Second

	// After this many consecutive failed connection attempts the stream is
	// declared unavailable and subscribers are told state is unknown.
	maxConnectFailures = 8
)

type tallyPayload struct {
	ItemID   string `json:"item_id"`
	Likes    int64  `json:"likes"`
	Dislikes int64  `json:"dislikes"`
}

type userVotePayload struct {
	UserID uuid.UUID `json:"user_id"`
	ItemID string    `json:"item_id"`
	Vote   *string   `json:"vote"`
}

// Listener adapts LISTEN/NOTIFY into a ports.ChangeStream. The database
// triggers publish the full current document as JSON on commit, in commit
// order per document, so every event downstream is a complete value and not
// a delta. pq.Listener reconnects on its own with backoff; a successful
// reconnect surfaces as a Reset event because notifications may have been
// missed while disconnected.
type Listener struct {
	connStr string
	log     zerolog.Logger

	events chan ports.StreamEvent

	mu       sync.Mutex
	failures int
	pl       *pq.Listener
	cancel   context.CancelFunc
}

func NewListener(connStr string, log zerolog.Logger) *Listener {
	return &Listener{
		connStr: connStr,
		log:     log.With().Str("component", "change_stream").Logger(),
		events:  make(chan ports.StreamEvent, 64),
	}
}

func (l *Listener) Start(ctx context.Context) error {
	pl := pq.NewListener(l.connStr, listenMinReconnect, listenMaxReconnect, l.onListenerEvent)

	if err := pl.Listen(tallyChannel); err != nil {
		pl.Close()
		return fmt.Errorf("failed to listen on %s: %w", tallyChannel, err)
	}
	if err := pl.Listen(userVoteChannel); err != nil {
		pl.Close()
		return fmt.Errorf("failed to listen on %s: %w", userVoteChannel, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.pl = pl
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(runCtx, pl)
	return nil
}

func (l *Listener) Events() <-chan ports.StreamEvent {
	return l.events
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.pl != nil {
		err := l.pl.Close()
		l.pl = nil
		return err
	}
	return nil
}

func (l *Listener) run(ctx context.Context, pl *pq.Listener) {
	defer close(l.events)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-pl.Notify:
			if !ok {
				return
			}
			if n == nil {
				// pq sends nil after the connection was re-established.
				l.log.Warn().Msg("change stream reconnected, requesting resync")
				l.emit(ctx, ports.StreamEvent{Reset: true})
				continue
			}
			l.dispatch(ctx, n)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, n *pq.Notification) {
	switch n.Channel {
	case tallyChannel:
		var p tallyPayload
		if err := json.Unmarshal([]byte(n.Extra), &p); err != nil {
			l.log.Error().Err(err).Str("payload", n.Extra).Msg("bad tally notification")
			return
		}
		l.emit(ctx, ports.StreamEvent{Tally: &ports.TallyEvent{
			ItemID: p.ItemID,
			Tally:  domain.Tally{Likes: p.Likes, Dislikes: p.Dislikes},
		}})

	case userVoteChannel:
		var p userVotePayload
		if err := json.Unmarshal([]byte(n.Extra), &p); err != nil {
			l.log.Error().Err(err).Str("payload", n.Extra).Msg("bad user vote notification")
			return
		}
		var vote *domain.VoteType
		if p.Vote != nil {
			t := domain.VoteType(*p.Vote)
			vote = &t
		}
		l.emit(ctx, ports.StreamEvent{UserVote: &ports.UserVoteEvent{
			UserID: p.UserID,
			ItemID: p.ItemID,
			Vote:   vote,
		}})
	}
}

func (l *Listener) emit(ctx context.Context, ev ports.StreamEvent) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

func (l *Listener) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		l.mu.Lock()
		l.failures = 0
		l.mu.Unlock()

	case pq.ListenerEventConnectionAttemptFailed:
		l.mu.Lock()
		l.failures++
		exhausted := l.failures == maxConnectFailures
		l.mu.Unlock()

		l.log.Warn().Err(err).Msg("change stream connection attempt failed")
		if exhausted {
			// Non-blocking: the error marker must not wedge pq's callback.
			select {
			case l.events <- ports.StreamEvent{Err: domain.ErrStreamUnavailable}:
			default:
			}
		}
	}
}
