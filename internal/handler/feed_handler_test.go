package handler_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/observability"
)

func listen(t *testing.T, f *chatFixture) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = f.app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = f.app.Shutdown()
	})
	return ln.Addr().String()
}

func TestFeedHandler_StreamsRoomEvents(t *testing.T) {
	f := newChatFixture(t)
	aliceID := f.register(t, "alice")
	roomID := f.roomID(t, "general")
	addr := listen(t, f)

	before := testutil.ToFloat64(observability.FeedConnections())
	url := fmt.Sprintf("ws://%s/api/v1/rooms/%s/ws?user_id=%s", addr, roomID, aliceID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.FeedConnections()) > before
	}, 2*time.Second, 10*time.Millisecond)

	content := "hello realtime"
	posted, err := f.messages.Post(context.Background(), aliceID, roomID, dto.PostMessageRequest{Content: &content})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var event dto.FeedEvent
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, dto.FeedMessageCreated, event.Type)
	require.Equal(t, roomID, event.RoomID)
	require.Equal(t, posted.ID, event.MessageID)
	require.NotNil(t, event.Message)
	require.Equal(t, content, *event.Message.Content)
}

func TestFeedHandler_RejectsBeforeUpgrade(t *testing.T) {
	f := newChatFixture(t)
	aliceID := f.register(t, "alice")
	bobID := f.register(t, "bob")
	carolID := f.register(t, "carol")
	roomID := f.roomID(t, "general")

	resp := f.do(t, http.MethodGet, "/api/v1/rooms/"+roomID+"/ws", aliceID, nil)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	var opened dto.DMResponse
	decodeData(t, f.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/dms", aliceID, map[string]string{"peer_id": bobID}), &opened)

	addr := listen(t, f)
	url := fmt.Sprintf("ws://%s/api/v1/rooms/%s/ws?user_id=%s", addr, opened.Room.ID, carolID)
	_, handshake, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, handshake)
	require.Equal(t, http.StatusForbidden, handshake.StatusCode)

	url = fmt.Sprintf("ws://%s/api/v1/rooms/missing/ws?user_id=%s", addr, aliceID)
	_, handshake, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, handshake)
	require.Equal(t, http.StatusNotFound, handshake.StatusCode)
}
