package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkvault/internal/live"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/utils"
)

const (
	liveWriteTimeout = 10 * time.Second
	livePongWait     = 60 * time.Second
	livePingPeriod   = livePongWait * 9 / 10
	liveMaxMessage   = 16 << 10
	liveOutBuffer    = 16
)

// Client messages on the live endpoint.
const (
	opAdd    = "add"
	opDelete = "delete"
	opResync = "resync"
)

type liveCommand struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"` // echoed back on the reply
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

type liveFrame struct {
	Type     string         `json:"type"` // "snapshot" | "ack" | "error"
	Op       string         `json:"op,omitempty"`
	Ref      string         `json:"ref,omitempty"`
	ID       string         `json:"id,omitempty"`
	Message  string         `json:"message,omitempty"`
	Snapshot *live.Snapshot `json:"snapshot,omitempty"`
}

// Live upgrades to a websocket and runs one session for the caller's
// identity. The server pushes a snapshot frame after every change to the
// collection or to the subscription state; the client sends add, delete
// and resync commands.
func Live(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(d.AllowedOrigins),
	}
	opTimeout := d.RequestTimeout
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity := mw.IdentityFrom(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an error status.
			d.Logger.Debug("live: upgrade failed", logger.Error(err))
			return
		}
		defer utils.CloseLogged(conn, d.Logger, "live websocket")

		viewLog := logger.Named(d.Logger, "live").With(logger.String("identity", identity))
		view := live.NewView(d.Backend, d.Hub, viewLog, d.ViewOptions)
		if !d.Sessions.Add(view) {
			return
		}
		defer d.Sessions.Remove(view)
		defer view.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := view.Open(ctx, identity); err != nil {
			d.Logger.Warn("live: open failed", logger.String("identity", identity), logger.Error(err))
			return
		}

		out := make(chan liveFrame, liveOutBuffer)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writeLoop(conn, view, out, ctx.Done(), d.Logger)

			// Unblocks the reader when the writer stops first.
			cancel()
			deadline := time.Now().Add(liveWriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			utils.Close(conn)
		}()

		readLoop(ctx, conn, view, out, opTimeout, d.Logger)
		cancel()
		<-writerDone
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, view *live.View, out chan<- liveFrame, opTimeout time.Duration, log logger.Logger) {
	conn.SetReadLimit(liveMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var cmd liveCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("live: read failed", logger.String("session", view.ID()), logger.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))

		reply := runCommand(ctx, view, cmd, opTimeout)
		select {
		case out <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func runCommand(ctx context.Context, view *live.View, cmd liveCommand, timeout time.Duration) liveFrame {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := liveFrame{Type: "ack", Op: cmd.Type, Ref: cmd.Ref}

	var err error
	switch cmd.Type {
	case opAdd:
		var item domain.Item
		item, err = view.SubmitAdd(ctx, cmd.URL, cmd.Title)
		reply.ID = item.ID
	case opDelete:
		if cmd.ID == "" {
			err = errors.New("missing id")
			break
		}
		err = view.SubmitDelete(ctx, cmd.ID)
		reply.ID = cmd.ID
	case opResync:
		err = view.Resync(ctx)
	default:
		err = errors.New("unknown command")
	}

	if err != nil {
		reply.Type = "error"
		reply.Message = err.Error()
	}
	return reply
}

// writeLoop is the only writer of conn.
func writeLoop(conn *websocket.Conn, view *live.View, out <-chan liveFrame, done <-chan struct{}, log logger.Logger) {
	snaps, stop := view.Watch()
	defer stop()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	write := func(f liveFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(f); err != nil {
			log.Debug("live: write failed", logger.String("session", view.ID()), logger.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if !write(liveFrame{Type: "snapshot", Snapshot: &snap}) {
				return
			}
		case f := <-out:
			if !write(f) {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(liveWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// originChecker accepts the listed origins, or only same-host origins
// when the list is empty. Requests without an Origin header are not
// from a browser and are accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) > 0 {
			return set[strings.ToLower(origin)]
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
