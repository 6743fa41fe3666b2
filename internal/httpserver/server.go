package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chadiek/live-interpreter/internal/history"
	"github.com/chadiek/live-interpreter/internal/rtc"
	"github.com/chadiek/live-interpreter/internal/session"
	"github.com/chadiek/live-interpreter/internal/speechout"
)

// OfferHandler answers WebRTC SDP offers.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offer rtc.SessionDescription) (rtc.SessionDescription, error)
}

// Server exposes the interpreter session over HTTP: a control API, a read
// API, a WebSocket event feed, WebRTC signaling, and Prometheus metrics.
type Server struct {
	echo  *echo.Echo
	ctrl  *session.Controller
	coord *speechout.Coordinator
	offer OfferHandler
	auth  string
	log   zerolog.Logger

	upgrader websocket.Upgrader
}

func New(ctrl *session.Controller, coord *speechout.Coordinator, offer OfferHandler, authPassword string, log zerolog.Logger) *Server {
	s := &Server{
		echo:  newEcho(),
		ctrl:  ctrl,
		coord: coord,
		offer: offer,
		auth:  authPassword,
		log:   log.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser demo clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/call", s.handleCall, s.requireAuth)
	e.POST("/session/start", s.handleStart, s.requireAuth)
	e.POST("/session/stop", s.handleStop, s.requireAuth)
	e.POST("/session/toggle", s.handleToggle, s.requireAuth)
	e.POST("/session/end", s.handleEnd, s.requireAuth)
	e.POST("/speak", s.handleSpeak, s.requireAuth)

	e.GET("/session", s.handleSnapshot)
	e.GET("/session/turns", s.handleTurns)
	e.GET("/session/events", s.handleEvents)
}

// Handler exposes the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start(address string) error {
	s.log.Info().Str("address", address).Msg("http server listening")
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireAuth enforces the shared password when one is configured. The token
// may arrive as ?password=, X-Auth-Token, or an Authorization bearer.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authOK(c.Request(), s.auth) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		return next(c)
	}
}

func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") && authz[7:] == expected {
		return true
	}
	return false
}

func (s *Server) handleCall(c echo.Context) error {
	var offer rtc.SessionDescription
	if err := c.Bind(&offer); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid offer"})
	}
	answer, err := s.offer.HandleOffer(c.Request().Context(), offer)
	if err != nil {
		s.log.Error().Err(err).Msg("webrtc offer failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "offer failed"})
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleStart(c echo.Context) error {
	var p session.StartParams
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if p.SpeakingLanguage == "" || p.PartnerLanguage == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "speakingLanguage and partnerLanguage are required"})
	}
	if p.ActiveSlot != history.SlotA && p.ActiveSlot != history.SlotB {
		p.ActiveSlot = history.SlotA
	}
	s.ctrl.Start(p)
	return c.JSON(http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleStop(c echo.Context) error {
	s.ctrl.Stop()
	return c.JSON(http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleToggle(c echo.Context) error {
	var req struct {
		Slot history.Slot `json:"slot"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Slot != history.SlotA && req.Slot != history.SlotB {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "slot must be A or B"})
	}
	s.ctrl.ToggleSpeaker(req.Slot)
	return c.JSON(http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleEnd(c echo.Context) error {
	s.ctrl.EndSession()
	return c.JSON(http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleSpeak(c echo.Context) error {
	var req struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Voice    string `json:"voice"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	accepted := s.coord.Speak(c.Request().Context(), req.Text, req.Language, false, req.Voice)
	return c.JSON(http.StatusOK, map[string]bool{"accepted": accepted})
}

func (s *Server) handleSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleTurns(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.History().Snapshot())
}

// handleEvents streams controller events over a WebSocket. The first message
// is the current snapshot so late joiners can render immediately.
func (s *Server) handleEvents(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	events, unsubscribe := s.ctrl.Subscribe(32)
	defer unsubscribe()
	defer conn.Close()

	type hello struct {
		Type     string           `json:"type"`
		Snapshot session.Snapshot `json:"snapshot"`
	}
	if err := conn.WriteJSON(hello{Type: "snapshot", Snapshot: s.ctrl.Snapshot()}); err != nil {
		return nil
	}

	// Reader goroutine exists only to observe the close from the client.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		}
	}
}
