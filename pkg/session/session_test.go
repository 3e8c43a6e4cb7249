package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/dx/pkg/lifecycle"
	"github.com/rescp17/dx/pkg/pairing"
	"github.com/rescp17/dx/pkg/signaling"
	webrtcPkg "github.com/rescp17/dx/pkg/webrtc"
)

// droppingRelay accepts one join and then drops the connection.
func droppingRelay(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestConnectReportsRelayLoss(t *testing.T) {
	lc := lifecycle.New(0)
	ctx := lc.Context(context.Background())

	opts := Options{
		Role:               pairing.Receiver,
		Code:               pairing.Code("123-4567-890"),
		RelayURL:           droppingRelay(t),
		NegotiationTimeout: 10 * time.Second,
		API:                webrtcPkg.NewWebRTCAPI(webrtcPkg.Config{IncludeLoopback: true}),
		Lifecycle:          lc,
	}

	sess, err := Connect(ctx, opts)
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, signaling.ErrRelayClosed)
	assert.Equal(t, 1, lifecycle.ExitCode(err))

	lc.Teardown(err)
	select {
	case <-lc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("teardown did not finish")
	}
	assert.ErrorIs(t, lc.Err(), signaling.ErrRelayClosed)
	assert.ErrorIs(t, context.Cause(ctx), signaling.ErrRelayClosed)
}

func TestConnectFailsWithoutRelay(t *testing.T) {
	lc := lifecycle.New(0)
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	_, err := Connect(context.Background(), Options{
		Role:      pairing.Sender,
		Code:      pairing.Code("123-4567-890"),
		RelayURL:  url,
		API:       webrtcPkg.NewWebRTCAPI(webrtcPkg.Config{IncludeLoopback: true}),
		Lifecycle: lc,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to relay")

	lc.Teardown(err)
	<-lc.Done()
	assert.Error(t, lc.Err())
}
