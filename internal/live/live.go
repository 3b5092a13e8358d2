// Package live serves projections over websockets. Each connection is one
// view; it receives a frame per snapshot until either side goes away.
package live

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"playroom/internal/docstore"
	"playroom/internal/httpx"
	"playroom/internal/identity"
)

const (
	FrameSnapshot = "snapshot"
	FrameStats    = "stats"
	FrameIdentity = "identity"

	writeTimeout = 10 * time.Second
	outBuffer    = 8
)

// Frame is one message sent to the client.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// IdentityWatcher follows the identity behind an access token.
type IdentityWatcher interface {
	OnIdentityChange(ctx context.Context, token string, fn func(*identity.Identity)) func()
}

// VisitWatcher follows the shared visit total.
type VisitWatcher interface {
	Watch(ctx context.Context, fn func(total int64)) (func(), error)
}

type Handler struct {
	store      docstore.Store
	identities IdentityWatcher
	visits     VisitWatcher
	origins    []string
	log        *zap.Logger
}

// NewHandler builds the live views. allowedOrigins are full origins as in
// the CORS configuration.
func NewHandler(store docstore.Store, identities IdentityWatcher, visits VisitWatcher, allowedOrigins []string, log *zap.Logger) *Handler {
	return &Handler{
		store:      store,
		identities: identities,
		visits:     visits,
		origins:    originPatterns(allowedOrigins),
		log:        log.Named("live"),
	}
}

// originPatterns turns "https://host:port" into the host patterns the
// websocket handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}

// view is a started live view.
type view struct {
	close func()
	// onViewer, when set, is told about identity changes of the viewer.
	onViewer func(*identity.Identity)
}

type startFunc func(ctx context.Context, s *stream, viewer *identity.Identity) (view, error)

// stream hands frames from view callbacks to the connection's writer.
type stream struct {
	ctx context.Context
	out chan Frame
}

// send blocks until the writer takes f or the connection is gone.
func (s *stream) send(f Frame) bool {
	select {
	case s.out <- f:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, name string, start startFunc) {
	log := h.log.With(zap.String("view", name), httpx.RequestIDField(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept has already written the response.
		log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(ws.CloseRead(r.Context()))
	defer cancel()
	s := &stream{ctx: ctx, out: make(chan Frame, outBuffer)}

	viewer := identity.FromRequest(r)
	v, err := start(ctx, s, viewer)
	if err != nil {
		log.Error("start live view failed", zap.Error(err))
		_ = ws.Close(websocket.StatusInternalError, "view unavailable")
		return
	}

	stopIdentity := func() {}
	if token := identity.TokenFromRequest(r); token != "" && h.identities != nil {
		stopIdentity = h.identities.OnIdentityChange(ctx, token, func(id *identity.Identity) {
			s.send(Frame{Type: FrameIdentity, Data: identityPayload(id)})
			if v.onViewer != nil {
				v.onViewer(id)
			}
		})
	}

	err = writeLoop(ctx, ws, s.out)
	cancel()
	stopIdentity()
	v.close()

	if err != nil && ctx.Err() == nil {
		log.Debug("live write failed", zap.Error(err))
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func writeLoop(ctx context.Context, ws *websocket.Conn, out <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, ws, f)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func identityPayload(id *identity.Identity) any {
	if id == nil {
		return nil
	}
	return map[string]any{
		"identity": id,
		"is_admin": id.IsAdmin(),
	}
}
