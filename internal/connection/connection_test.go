package connection

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

	"github.com/rapidaai/edgetts/internal/buffer"
	"github.com/rapidaai/edgetts/internal/codec"
	"github.com/rapidaai/edgetts/internal/edgeerr"
	"github.com/rapidaai/edgetts/internal/session"
	"github.com/rapidaai/edgetts/internal/ssml"
	"github.com/rapidaai/edgetts/pkg/commons"
)

var upgrader = websocket.Upgrader{}

// newFakeServer starts an in-process Edge TTS stand-in: it waits for the
// speech.config and ssml text frames, then plays back scripted server
// frames, mirroring the inbound X-RequestId it was given.
func newFakeServer(t *testing.T, script func(requestId string, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// speech.config
		_, configRaw, err := conn.ReadMessage()
		require.NoError(t, err)
		configFrame, err := codec.DecodeText(configRaw)
		require.NoError(t, err)
		requestId := codec.RequestId(configFrame.Headers)

		// ssml
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)

		script(requestId, conn)
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func newTestConnection(t *testing.T, srv *httptest.Server) *Connection {
	c := New("conn-1", commons.NewNopLogger(), buffer.NewService(buffer.DefaultConfig(), commons.NewNopLogger()), DefaultOptions())
	c.urlFunc = func(id string, now time.Time) string { return wsURL(srv.URL) }
	c.headerFunc = func(id string, now time.Time) http.Header { return http.Header{} }
	return c
}

func TestSynthesize_HappyPath(t *testing.T) {
	srv := newFakeServer(t, func(requestId string, conn *websocket.Conn) {
		now := time.Now()
		send := func(frame []byte) { conn.WriteMessage(websocket.TextMessage, frame) }

		send(codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "turn.start"},
			{Name: "Content-Type", Value: "application/json"},
		}, "{}"))

		audio := codec.EncodeBinaryFrame(requestId, now, []byte{0xFF, 0xFB, 0x01, 0x02})
		conn.WriteMessage(websocket.BinaryMessage, audio)

		send(codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "turn.end"},
			{Name: "Content-Type", Value: "application/json"},
		}, "{}"))
	})
	defer srv.Close()

	c := newTestConnection(t, srv)
	opts := ssml.Options{Voice: "en-US-AriaNeural"}
	sess, err := c.Synthesize(context.Background(), "hello", opts, ssml.DefaultConfig(), Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x01, 0x02}, sess.MergedAudio())
}

func TestSynthesize_NoAudioIsError(t *testing.T) {
	srv := newFakeServer(t, func(requestId string, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "turn.start"},
		}, "{}"))
		conn.WriteMessage(websocket.TextMessage, codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "turn.end"},
		}, "{}"))
	})
	defer srv.Close()

	c := newTestConnection(t, srv)
	_, err := c.Synthesize(context.Background(), "hello", ssml.Options{Voice: "en-US-AriaNeural"}, ssml.DefaultConfig(), Callbacks{})
	require.Error(t, err)
	e, ok := edgeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, edgeerr.KindAudioNoAudioReceived, e.Kind)
}

func TestSynthesize_BoundaryCallbackFires(t *testing.T) {
	srv := newFakeServer(t, func(requestId string, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "turn.start"},
		}, "{}"))

		metaBody := `{"Metadata":[{"Type":"WordBoundary","Data":{"Offset":8750000,"Duration":1000000,"text":{"Text":"hello","Length":5}}}]}`
		conn.WriteMessage(websocket.TextMessage, codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "audio.metadata"},
		}, metaBody))

		conn.WriteMessage(websocket.BinaryMessage, codec.EncodeBinaryFrame(requestId, time.Now(), []byte{0xFF, 0xFB}))

		conn.WriteMessage(websocket.TextMessage, codec.EncodeTextFrame([]codec.Header{
			{Name: "X-RequestId", Value: requestId},
			{Name: "Path", Value: "turn.end"},
		}, "{}"))
	})
	defer srv.Close()

	var boundaries []session.BoundaryEvent
	c := newTestConnection(t, srv)
	_, err := c.Synthesize(context.Background(), "hello", ssml.Options{Voice: "en-US-AriaNeural"}, ssml.DefaultConfig(), Callbacks{
		OnBoundary: func(ev session.BoundaryEvent) { boundaries = append(boundaries, ev) },
	})
	require.NoError(t, err)
	require.Len(t, boundaries, 1)
	assert.Equal(t, 0, boundaries[0].CharIndex)
	assert.Equal(t, 5, boundaries[0].CharLength)
}
