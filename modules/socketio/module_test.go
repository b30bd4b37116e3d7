package socketio

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/testutil"
	"github.com/vk/streamgridgo/internal/timestamp"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// eventServer is an in-process Socket.IO server recording one event name.
type eventServer struct {
	url          string
	events       chan any
	disconnected chan struct{}
}

func newEventServer(t *testing.T, event string) *eventServer {
	t.Helper()
	s := &eventServer{events: make(chan any, 16), disconnected: make(chan struct{})}
	var once sync.Once

	io := sio.NewServer(nil, nil)
	require.NoError(t, io.On("connection", func(clients ...any) {
		client := clients[0].(*sio.Socket)
		client.On(event, func(args ...any) {
			if len(args) > 0 {
				s.events <- args[0]
			}
		})
		client.On("disconnect", func(...any) {
			once.Do(func() { close(s.disconnected) })
		})
	}))

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", io.ServeHandler(nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		io.Close(nil)
		srv.Close()
	})
	s.url = srv.URL + "/socket.io/"
	return s
}

func (s *eventServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case e := <-s.events:
		m, ok := e.(map[string]any)
		require.True(t, ok, "event body is %T", e)
		return m
	case <-time.After(testutil.Timeout):
		t.Fatal("no event received")
		return nil
	}
}

func TestOpenRejectsBadOptions(t *testing.T) {
	testCases := []struct {
		name    string
		options string
		wantErr string
	}{
		{name: "scheme", options: `url = "ftp://example.com/socket.io/"`, wantErr: `unsupported URL scheme "ftp"`},
		{name: "host", options: `url = "http:///socket.io/"`, wantErr: "has no host"},
		{name: "parse", options: `url = "http://[::1"`, wantErr: "failed to parse URL"},
		{
			name: "timeout",
			options: `
    url     = "http://localhost:1/"
    timeout = "soon"`,
			wantErr: `invalid timeout "soon"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			src := `
input_stream = ["in"]
node "SocketIOSinkCalculator" {
  input_stream = ["in"]
  node_options "type.googleapis.com/streamgrid.SocketIOSinkOptions" {
    ` + tc.options + `
  }
}
`
			h := testutil.NewHarness(t, src, &Module{})

			// --- Act ---
			err := h.Graph.StartRun(h.Context(), nil)

			// --- Assert ---
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestContractNeedsInputsOnly(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{name: "no inputs", src: `
node "SocketIOSinkCalculator" {
  node_options "type.googleapis.com/streamgrid.SocketIOSinkOptions" {
    url = "http://localhost/"
  }
}
`},
		{name: "outputs", src: `
input_stream = ["in"]
node "SocketIOSinkCalculator" {
  input_stream  = ["in"]
  output_stream = ["out"]
  node_options "type.googleapis.com/streamgrid.SocketIOSinkOptions" {
    url = "http://localhost/"
  }
}
`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testutil.TryHarness(t, tc.src, &Module{})

			require.Error(t, err)
			assert.ErrorContains(t, err, "SocketIOSinkCalculator")
		})
	}
}

func TestPayload(t *testing.T) {
	testCases := []struct {
		name string
		p    packet.Packet
		want any
	}{
		{name: "scalar", p: packet.CreateFloat(1.5), want: 1.5},
		{name: "list", p: packet.CreateStringList([]string{"a", "b"}), want: []string{"a", "b"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Payload("in", tc.p.At(timestamp.New(7)))

			assert.Equal(t, "in", got["stream"])
			assert.Equal(t, int64(7), got["timestamp"])
			assert.Equal(t, tc.p.TypeName(), got["type"])
			assert.Equal(t, tc.want, got["value"])
		})
	}

	t.Run("image is rendered as text", func(t *testing.T) {
		frame, err := packet.CreateImageFrame(packet.FormatSRGB, 1, 1, []byte{1, 2, 3})
		require.NoError(t, err)

		got := Payload("image", frame)

		assert.IsType(t, "", got["value"])
	})
}

func TestSinkEmitsEventsOverConnection(t *testing.T) {
	// --- Arrange ---
	server := newEventServer(t, "frame")
	src := `
input_stream = ["label", "score"]
node "SocketIOSinkCalculator" {
  input_stream = ["LABEL:label", "SCORE:score"]
  node_options "type.googleapis.com/streamgrid.SocketIOSinkOptions" {
    url     = "` + server.url + `"
    event   = "frame"
    timeout = "5s"
  }
}
`
	h := testutil.NewHarness(t, src, &Module{})
	h.Start(nil)

	// --- Act ---
	h.Add("label", 1, packet.CreateString("cat"))
	h.Add("score", 1, packet.CreateInt(3))
	require.NoError(t, h.Graph.CloseInputStream("label"))
	h.Add("score", 2, packet.CreateInt(4))
	first, second, third := server.next(t), server.next(t), server.next(t)
	err := h.Finish()

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "label", first["stream"])
	assert.Equal(t, "string", first["type"])
	assert.Equal(t, "cat", first["value"])
	assert.EqualValues(t, 1, first["timestamp"])

	assert.Equal(t, "score", second["stream"])
	assert.EqualValues(t, 3, second["value"])
	assert.EqualValues(t, 1, second["timestamp"])

	assert.Equal(t, "score", third["stream"])
	assert.EqualValues(t, 4, third["value"])
	assert.EqualValues(t, 2, third["timestamp"])

	select {
	case <-server.disconnected:
	case <-time.After(testutil.Timeout):
		t.Fatal("calculator did not disconnect on Close")
	}
	assert.Contains(t, h.Logs.String(), "Connected.")
}
