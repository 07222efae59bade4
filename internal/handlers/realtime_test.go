package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crewline/internal/handlers/testutil"
	"github.com/charlesng35/crewline/internal/realtime"
)

func TestNotificationStreamDeliversInvitation(t *testing.T) {
	env := testutil.NewEnv(t)
	inviter := env.CreateUser("alice", "admin")
	invitee := env.CreateUser("bob", "member")

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.Token(invitee))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/notifications/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return env.Services.Hub.Subscribers(realtime.StreamNotifications, invitee.ID) == 1
	}, time.Second, 10*time.Millisecond)

	createInvitation(t, env, inviter, invitee.Email)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.StreamNotifications, msg.Stream)
	require.Equal(t, realtime.EventNotificationCreated, msg.Event)
}

func TestNotificationStreamRejectsUnknownStream(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("alice", "admin")

	w := env.Request(http.MethodGet, "/api/notifications/stream?streams=admin.audit", nil, env.Token(user))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
