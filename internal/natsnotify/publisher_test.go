package natsnotify

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/sink"
)

func startTestNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv
}

func TestPublisher_PublishesReloadEvents(t *testing.T) {
	srv := startTestNATS(t)

	pub, err := Connect(srv.ClientURL(), "")
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()
	require.Equal(t, DefaultSubject, pub.Subject())
	require.Equal(t, "nats", pub.Name())

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(DefaultSubject, ch)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, nc.Flush())

	ev := sink.ReloadEvent{RunID: "r1", Entry: "build", Paths: []string{"build/index.html"}, Timestamp: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, pub.Notify(t.Context(), ev))

	select {
	case msg := <-ch:
		var got sink.ReloadEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		require.Equal(t, ev.RunID, got.RunID)
		require.Equal(t, ev.Paths, got.Paths)
		require.True(t, ev.Timestamp.Equal(got.Timestamp))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublisher_FailsAfterServerShutdown(t *testing.T) {
	srv := startTestNATS(t)

	pub, err := Connect(srv.ClientURL(), "custom.subject", nats.NoReconnect())
	require.NoError(t, err)
	srv.Shutdown()
	require.Eventually(t, func() bool { return pub.conn.IsClosed() }, 2*time.Second, 10*time.Millisecond)

	err = pub.Notify(t.Context(), sink.ReloadEvent{RunID: "r2"})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotification))
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "")
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotification))
}
