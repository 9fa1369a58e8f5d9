package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Type     string  `json:"type"`
	Item     string  `json:"item"`
	Likes    int64   `json:"likes"`
	Dislikes int64   `json:"dislikes"`
	MyVote   *string `json:"my_vote"`
	Pending  bool    `json:"pending"`
	Error    string  `json:"error"`
}

func dialStream(t *testing.T, app *TestApp, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(app.Server.URL, "http") + "/api/stream"
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", (&http.Cookie{Name: "access_token", Value: token}).String())
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForState reads frames until pred accepts a state frame for the item.
func waitForState(t *testing.T, conn *websocket.Conn, itemID string, pred func(wsFrame) bool) wsFrame {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading stream frame: %v", err)
		}
		if frame.Type != "state" || frame.Item != itemID {
			continue
		}
		if pred(frame) {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]string) {
	t.Helper()
	data, _ := json.Marshal(frame)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestStreamOptimisticVote(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)
	itemID := "tt0111161"

	conn := dialStream(t, app, token)
	send(t, conn, map[string]string{"type": "watch", "item": itemID})

	// Initial projection is zero and settled.
	waitForState(t, conn, itemID, func(f wsFrame) bool {
		return f.Likes == 0 && !f.Pending
	})

	send(t, conn, map[string]string{"type": "vote", "item": itemID, "vote": "like"})

	// The speculative repaint arrives before any transaction result.
	frame := waitForState(t, conn, itemID, func(f wsFrame) bool { return f.Pending })
	assert.Equal(t, int64(1), frame.Likes)
	require.NotNil(t, frame.MyVote)
	assert.Equal(t, "like", *frame.MyVote)

	// The committed notification confirms it and clears pending.
	frame = waitForState(t, conn, itemID, func(f wsFrame) bool {
		return !f.Pending && f.Likes == 1
	})
	require.NotNil(t, frame.MyVote)
	assert.Equal(t, "like", *frame.MyVote)

	// Toggle off converges back to zero.
	send(t, conn, map[string]string{"type": "vote", "item": itemID, "vote": "like"})
	frame = waitForState(t, conn, itemID, func(f wsFrame) bool {
		return !f.Pending && f.Likes == 0
	})
	assert.Nil(t, frame.MyVote)
}

func TestStreamFanOutToOtherViewers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, voterToken := createUserAndToken(t, app.DB)
	itemID := "tt0068646"

	voter := dialStream(t, app, voterToken)
	watcher := dialStream(t, app, "") // anonymous viewer, tally only

	send(t, voter, map[string]string{"type": "watch", "item": itemID})
	send(t, watcher, map[string]string{"type": "watch", "item": itemID})

	waitForState(t, voter, itemID, func(f wsFrame) bool { return !f.Pending })
	waitForState(t, watcher, itemID, func(f wsFrame) bool { return !f.Pending })

	send(t, voter, map[string]string{"type": "vote", "item": itemID, "vote": "dislike"})

	// Every watching view converges to the committed tally; the watcher never
	// sees the voter's own vote.
	frame := waitForState(t, watcher, itemID, func(f wsFrame) bool {
		return f.Dislikes == 1 && !f.Pending
	})
	assert.Nil(t, frame.MyVote)

	waitForState(t, voter, itemID, func(f wsFrame) bool {
		return f.Dislikes == 1 && !f.Pending && f.MyVote != nil
	})
}

func TestStreamAnonymousCannotVote(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	conn := dialStream(t, app, "")
	send(t, conn, map[string]string{"type": "watch", "item": "tt0111161"})
	waitForState(t, conn, "tt0111161", func(f wsFrame) bool { return !f.Pending })

	send(t, conn, map[string]string{"type": "vote", "item": "tt0111161", "vote": "like"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var frame wsFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == "error" {
			assert.Contains(t, frame.Error, "sign in")
			break
		}
	}

	tally := getTally(t, app, "tt0111161")
	assert.Equal(t, int64(0), tally["likes"])
}

func TestStreamVoteOverRest_ReachesWatchers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)
	itemID := "tt0137523"

	conn := dialStream(t, app, "")
	send(t, conn, map[string]string{"type": "watch", "item": itemID})
	waitForState(t, conn, itemID, func(f wsFrame) bool { return !f.Pending })

	// A vote cast over plain HTTP still fans out to stream watchers.
	resp := castVote(t, app, token, itemID, "like")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	waitForState(t, conn, itemID, func(f wsFrame) bool {
		return f.Likes == 1 && !f.Pending
	})
}
