package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vmihailenco/msgpack/v5"

	"iq-scope/internal/metrics"
	"iq-scope/internal/model"
	"iq-scope/internal/state"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ControlFunc applies one JSON control message from a client.
type ControlFunc func(ctx context.Context, msg []byte) error

// StatusFunc returns a JSON-encodable status value.
type StatusFunc func() any

// Broadcaster receives Frames from the engine and fans them out to WS
// clients.
type Broadcaster struct {
	input   <-chan model.Frame
	buffer  *state.FrameRing
	control ControlFunc
	status  StatusFunc
	hub     *Hub
}

func NewBroadcaster(input <-chan model.Frame, buffer *state.FrameRing, control ControlFunc, status StatusFunc) *Broadcaster {
	return &Broadcaster{
		input:   input,
		buffer:  buffer,
		control: control,
		status:  status,
		hub:     newHub(buffer),
	}
}

// Handler serves /ws, /latest, /status and /metrics.
func (b *Broadcaster) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(b.hub, b.control, w, r)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var v any
		if b.status != nil {
			v = b.status()
		}
		json.NewEncoder(w).Encode(v)
	})
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		var (
			f  model.Frame
			ok bool
		)
		if b.buffer != nil {
			f, ok = b.buffer.Latest()
		}
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		msg, err := f.EncodeMsgPack()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		w.Write(msg)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run fans frames out until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.hub.run(ctx, b.input)
}

// Start runs the hub and the HTTP server until ctx is done.
func (b *Broadcaster) Start(ctx context.Context, addr string) error {
	go b.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: b.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[Broadcast] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Hub maintains active clients and broadcasts MsgPack frames to all.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	buffer     *state.FrameRing
	done       chan struct{} // closed when run returns
}

func newHub(buffer *state.FrameRing) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		buffer:     buffer,
		done:       make(chan struct{}),
	}
}

func (h *Hub) run(ctx context.Context, input <-chan model.Frame) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.conn.Close()
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.Clients.Set(float64(len(h.clients)))
			log.Printf("[Broadcast] client connected (%d total)", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.Clients.Set(float64(len(h.clients)))
				log.Printf("[Broadcast] client disconnected (%d total)", len(h.clients))
			}
		case frame, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			// Serialize ONCE per frame.
			msg, err := frame.EncodeMsgPack()
			if err != nil {
				log.Printf("[Broadcast] encode frame %d: %v", frame.Seq, err)
				continue
			}

			for client := range h.clients {
				select {
				case client.send <- outbound{websocket.BinaryMessage, msg}:
				default:
					// Slow client — drop this frame, don't kill.
					// Dead clients are cleaned up via readPump.
					metrics.QueueDrops.WithLabelValues("ws").Inc()
				}
			}
		}
	}
}

type outbound struct {
	kind int
	data []byte
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan outbound
}

// ═══════════════════════════════════════════════════════════════
// STREAMING HISTORY PROTOCOL
// ═══════════════════════════════════════════════════════════════
//
// Recent frames are streamed as individual messages on connect
// (/ws?since=SEQ limits them to frames newer than SEQ):
//
//   Message 1: MsgPack uint32 = count of history frames
//   Message 2..N+1: Individual frames (msgpack map, see model.Frame)
//   After: Client registered for live frames
//
// Clients send JSON control messages as text frames; each gets a JSON
// text reply: {"ok":true} or {"ok":false,"error":"..."}.

type controlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func serveWs(hub *Hub, control ControlFunc, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan outbound, 256)}

	// Send history BEFORE registering for live frames
	if hub.buffer != nil {
		since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
		frames := hub.buffer.Since(since)
		if len(frames) > 0 {
			header, _ := msgpack.Marshal(uint32(len(frames)))
			if err := conn.WriteMessage(websocket.BinaryMessage, header); err != nil {
				log.Printf("[Broadcast] failed to send history header: %v", err)
				conn.Close()
				return
			}

			for i := range frames {
				msg, err := frames[i].EncodeMsgPack()
				if err == nil {
					err = conn.WriteMessage(websocket.BinaryMessage, msg)
				}
				if err != nil {
					log.Printf("[Broadcast] history stream interrupted after %d frames: %v", i, err)
					conn.Close()
					return
				}
			}
			log.Printf("[Broadcast] streamed %d history frames to new client", len(frames))
		}
	}

	select {
	case client.hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(control)
}

const controlTimeout = 5 * time.Second

func (c *Client) readPump(control ControlFunc) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.TextMessage || control == nil {
			continue
		}

		reply := controlReply{OK: true}
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		if err := control(ctx, msg); err != nil {
			reply = controlReply{Error: err.Error()}
		}
		cancel()
		data, _ := json.Marshal(reply)
		select {
		case c.send <- outbound{websocket.TextMessage, data}:
		default:
			metrics.QueueDrops.WithLabelValues("ws").Inc()
		}
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for {
		var (
			message outbound
			ok      bool
		)
		select {
		case message, ok = <-c.send:
		case <-c.hub.done:
			return
		}
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		w, err := c.conn.NextWriter(message.kind)
		if err != nil {
			return
		}
		w.Write(message.data)

		if err := w.Close(); err != nil {
			return
		}
	}
}
