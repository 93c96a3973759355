package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"iq-scope/internal/model"
	"iq-scope/internal/state"
)

func readBinary(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message kind = %d, want binary", kind)
	}
	return data
}

func readReply(t *testing.T, c *websocket.Conn) controlReply {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("message kind = %d, want text", kind)
	}
	var r controlReply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatal(err)
	}
	return r
}

// TestHubHistoryControlAndLive walks one client through the whole protocol:
// history on connect, control replies, then live frames.
func TestHubHistoryControlAndLive(t *testing.T) {
	buf := state.NewFrameRing(8)
	buf.Add(model.Frame{Seq: 1, TraceSize: 2})
	buf.Add(model.Frame{Seq: 2, TraceSize: 2})

	got := make(chan string, 4)
	control := func(ctx context.Context, msg []byte) error {
		got <- string(msg)
		if strings.Contains(string(msg), "bad") {
			return errors.New("boom")
		}
		return nil
	}

	input := make(chan model.Frame, 1)
	b := NewBroadcaster(input, buf, control, func() any { return map[string]int{"captures": 3} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var n uint32
	if err := msgpack.Unmarshal(readBinary(t, c), &n); err != nil || n != 2 {
		t.Fatalf("history header = %d, %v", n, err)
	}
	for want := uint64(1); want <= 2; want++ {
		f, err := model.DecodeFrame(readBinary(t, c))
		if err != nil || f.Seq != want {
			t.Fatalf("history frame = %+v, %v", f, err)
		}
	}

	c.WriteMessage(websocket.TextMessage, []byte(`{"op":"rearm"}`))
	if r := readReply(t, c); !r.OK {
		t.Fatalf("reply = %+v", r)
	}
	if msg := <-got; msg != `{"op":"rearm"}` {
		t.Fatalf("control got %q", msg)
	}
	c.WriteMessage(websocket.TextMessage, []byte(`{"op":"bad"}`))
	if r := readReply(t, c); r.OK || r.Error != "boom" {
		t.Fatalf("reply = %+v", r)
	}

	// The client is registered once it got a reply.
	input <- model.Frame{Seq: 3, Traces: []model.TraceBuffer{{Count: 1, Points: []model.Point{{X: 0, Y: 0.5}}}}}
	f, err := model.DecodeFrame(readBinary(t, c))
	if err != nil || f.Seq != 3 || f.Traces[0].Points[0].Y != 0.5 {
		t.Fatalf("live frame = %+v, %v", f, err)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	b := NewBroadcaster(nil, nil, nil, func() any { return map[string]int{"captures": 3} })
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	var st map[string]int
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st["captures"] != 3 {
		t.Fatalf("status = %v", st)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "iqscope_ws_clients") {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}

func TestHistorySinceAndLatest(t *testing.T) {
	buf := state.NewFrameRing(8)
	for seq := uint64(1); seq <= 3; seq++ {
		buf.Add(model.Frame{Seq: seq})
	}
	b := NewBroadcaster(nil, buf, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?since=2", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var n uint32
	if err := msgpack.Unmarshal(readBinary(t, c), &n); err != nil || n != 1 {
		t.Fatalf("history header = %d, %v", n, err)
	}
	if f, err := model.DecodeFrame(readBinary(t, c)); err != nil || f.Seq != 3 {
		t.Fatalf("history frame = %+v, %v", f, err)
	}

	resp, err := http.Get(srv.URL + "/latest")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	f, err := model.DecodeFrame(body)
	if err != nil || f.Seq != 3 {
		t.Fatalf("latest = %+v, %v", f, err)
	}
}

func TestLatestEmpty(t *testing.T) {
	srv := httptest.NewServer(NewBroadcaster(nil, state.NewFrameRing(1), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/latest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}
