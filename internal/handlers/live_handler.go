package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/middleware"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second
)

// sessionFrame is one message on /ws/session. The first frame of a signed-in
// stream carries the profile display fields.
type sessionFrame struct {
	session.State
	Profile *models.ProfileView `json:"profile,omitempty"`
}

// LiveHandler serves the push streams: auth state and live score.
type LiveHandler struct {
	scores   *services.ScoreService
	broker   *session.Broker
	gate     *middleware.SessionGate
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewLiveHandler(scores *services.ScoreService, broker *session.Broker, gate *middleware.SessionGate, allowedOrigins []string, log logger.Logger) *LiveHandler {
	return &LiveHandler{
		scores: scores,
		broker: broker,
		gate:   gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With(zap.String("handler", "live")),
	}
}

// Scores streams the match document. It needs no session.
func (h *LiveHandler) Scores(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	defer middleware.TrackSocket("scores")()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan interface{}, 1)
	sub, err := h.scores.Watch(ctx, func(v models.ScoreView) {
		offerLatest(frames, v)
	})
	if err != nil {
		h.log.Error("score subscribe failed", err)
		return
	}
	defer sub.Close()

	go h.writeLoop(ctx, cancel, conn, frames, nil)
	readUntilClosed(conn)
}

// Session streams auth-state changes for the caller. Without a session it
// sends one signed-out frame and closes.
func (h *LiveHandler) Session(w http.ResponseWriter, r *http.Request) {
	if middleware.TokenFromRequest(r) == "" {
		if tok := r.URL.Query().Get("token"); tok != "" {
			r.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	sess, authErr := h.gate.Resolve(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	defer middleware.TrackSocket("session")()

	if authErr != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(sessionFrame{State: session.SignedOut("")})
		closeNormally(conn)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view := models.NewProfileView(sess.UserID(), sess.Identity.Email, sess.Profile)
	initial := session.SignedIn(sess.UserID())
	initial.Redirect = ""

	frames := make(chan interface{}, 1)
	first := true
	sub := h.broker.Subscribe(ctx, sess.UserID(), initial, func(st session.State) {
		frame := sessionFrame{State: st}
		if first {
			frame.Profile = &view
			first = false
		}
		offerLatest(frames, frame)
	})
	defer sub.Close()

	go h.writeLoop(ctx, cancel, conn, frames, func(v interface{}) bool {
		f, ok := v.(sessionFrame)
		return ok && !f.SignedIn
	})
	readUntilClosed(conn)
}

// writeLoop sends frames and pings until ctx ends. last reports whether a
// frame ends the stream.
func (h *LiveHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frames <-chan interface{}, last func(interface{}) bool) {
	defer cancel()
	// give the peer a moment to answer the close, then unblock the reader
	defer conn.SetReadDeadline(time.Now().Add(writeWait))
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}
			if last != nil && last(v) {
				closeNormally(conn)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so control messages are handled, and
// returns when the peer goes away.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// offerLatest replaces any unsent frame with v.
func offerLatest(ch chan interface{}, v interface{}) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
