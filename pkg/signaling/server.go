package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rescp17/dx/pkg/pairing"
)

const roomCapacity = 2

// ServerConfig tunes the relay's per-connection limits.
type ServerConfig struct {
	MessagesPerSecond float64
	Burst             int
	MaxMessageBytes   int64
}

func (c ServerConfig) WithDefaults() ServerConfig {
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 50
	}
	if c.Burst <= 0 {
		c.Burst = 100
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = maxMessageBytes
	}
	return c
}

type participant struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *participant) send(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *participant) sendJSON(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(msg)
}

// Server is a minimal rendezvous relay: peers join a room by code and every
// further message is forwarded verbatim to the other member of that room.
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string][]*participant
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		cfg: cfg.WithDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string][]*participant),
	}
}

// Rooms reports the number of rooms with at least one member.
func (s *Server) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Relay upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	p := &participant{id: uuid.NewString(), conn: conn}
	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	slog.Debug("Relay connection opened", "id", p.id, "remote", r.RemoteAddr)

	var room string
	defer func() {
		if room != "" {
			s.leave(room, p)
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Relay connection ended", "id", p.id, "error", err)
			}
			return
		}
		if !limiter.Allow() {
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			_ = p.sendJSON(Message{Type: TypeError, Message: "invalid message"})
			continue
		}

		if msg.Type == TypeJoin {
			if room != "" {
				_ = p.sendJSON(Message{Type: TypeError, Message: "already joined"})
				continue
			}
			if err := pairing.Validate(msg.Code); err != nil {
				_ = p.sendJSON(Message{Type: TypeError, Message: "invalid code"})
				continue
			}
			if !s.join(msg.Code, p) {
				_ = p.sendJSON(Message{Type: TypeError, Message: "room is full"})
				writeClose(conn, websocket.ClosePolicyViolation, "room is full")
				return
			}
			room = msg.Code
			continue
		}

		if room == "" || msg.Code != room {
			_ = p.sendJSON(Message{Type: TypeError, Message: "not joined"})
			continue
		}
		if other := s.peerOf(room, p); other != nil {
			if err := other.send(data); err != nil {
				slog.Warn("Relay forward failed", "room", room, "error", err)
			}
		}
	}
}

func (s *Server) join(code string, p *participant) bool {
	s.mu.Lock()
	members := s.rooms[code]
	if len(members) >= roomCapacity {
		s.mu.Unlock()
		return false
	}
	members = append(members, p)
	s.rooms[code] = members
	full := len(members) == roomCapacity
	s.mu.Unlock()

	slog.Info("Peer joined room", "room", code, "id", p.id, "members", len(members))
	if full {
		for _, m := range members {
			if err := m.sendJSON(Message{Type: TypeStart, Code: code}); err != nil {
				slog.Warn("Failed to send start", "room", code, "id", m.id, "error", err)
			}
		}
	}
	return true
}

func (s *Server) peerOf(code string, p *participant) *participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rooms[code] {
		if m != p {
			return m
		}
	}
	return nil
}

func (s *Server) leave(code string, p *participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.rooms[code]
	kept := members[:0]
	for _, m := range members {
		if m != p {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(s.rooms, code)
	} else {
		s.rooms[code] = kept
	}
	slog.Info("Peer left room", "room", code, "id", p.id)
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
