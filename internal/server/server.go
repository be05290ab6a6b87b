// Package server exposes the interview loop over HTTP: multipart turn
// submission, call-end summaries, and a WebSocket event feed per session.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/call"
)

// TurnHandler is the server's view of the turn service.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req call.TurnRequest) (call.TurnResult, error)
	EndCall(ctx context.Context, req call.EndRequest) (call.EndResult, error)
}

// Onboarder registers a candidate from their CV text.
type Onboarder interface {
	Onboard(ctx context.Context, req call.OnboardRequest) (call.OnboardResult, error)
}

// Server routes interview traffic to the turn service.
type Server struct {
	turns  TurnHandler
	hub    *Hub
	logger *zap.Logger

	// Onboarding enables the CV onboarding route when set before Register.
	Onboarding Onboarder
}

func New(turns TurnHandler, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{turns: turns, hub: hub, logger: logger}
}

// NewEcho creates a configured Echo instance with the server's routes.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	s.Register(e)
	return e
}

// Register attaches the routes to an existing Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/agents/:agent/turns", s.turn)
	e.POST("/agents/:agent/summary", s.summary)
	if s.Onboarding != nil {
		e.POST("/candidates/onboard", s.onboard)
	}
	if s.hub != nil {
		e.GET("/sessions/:id/events", s.events)
	}
}

// onboard accepts a multipart CV upload: name, email and the CV as either a
// text part ("cvText") or an attached text file ("cv").
func (s *Server) onboard(c echo.Context) error {
	name := c.FormValue("name")
	email := c.FormValue("email")
	cvText := c.FormValue("cvText")

	if fh, err := c.FormFile("cv"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable cv part")
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable cv part")
		}
		cvText = string(raw)
	}

	res, err := s.Onboarding.Onboard(c.Request().Context(), call.OnboardRequest{
		Name:   name,
		Email:  email,
		CVText: cvText,
	})
	if err != nil {
		if name == "" || email == "" || cvText == "" {
			return c.String(http.StatusBadRequest, "Missing data")
		}
		s.logger.Error("onboarding failed", zap.String("email", email), zap.Error(err))
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"candidateId": res.CandidateID,
		"summary":     res.Summary,
	})
}

// turn accepts one multipart turn submission. The audio part is optional:
// its absence on a fresh session requests the agent's greeting, on a live
// session it is an acknowledged no-op.
func (s *Server) turn(c echo.Context) error {
	sessionID := c.FormValue("sessionId")
	if sessionID == "" {
		return c.String(http.StatusBadRequest, "Missing sessionId")
	}

	var clip []byte
	if fh, err := c.FormFile("audio"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable audio part")
		}
		defer f.Close()
		clip, err = io.ReadAll(f)
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable audio part")
		}
	}

	res, err := s.turns.HandleTurn(c.Request().Context(), call.TurnRequest{
		Agent:       c.Param("agent"),
		SessionKey:  sessionID,
		JobID:       c.FormValue("jobId"),
		CandidateID: c.FormValue("candidateId"),
		Clip:        clip,
	})
	if err != nil {
		s.logger.Error("turn failed",
			zap.String("agent", c.Param("agent")),
			zap.String("session", sessionID),
			zap.Error(err),
		)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	if len(res.Audio) > 0 {
		if jobID := c.FormValue("jobId"); jobID != "" {
			c.Response().Header().Set("x-job-id", jobID)
		}
		return c.Blob(http.StatusOK, "audio/mpeg", res.Audio)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":   true,
		"text": res.SpokenText,
	})
}

type summaryRequest struct {
	SessionID string `json:"sessionId"`
	JobID     string `json:"jobId"`
}

func (s *Server) summary(c echo.Context) error {
	var req summaryRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return c.String(http.StatusBadRequest, "Missing sessionId")
	}

	res, err := s.turns.EndCall(c.Request().Context(), call.EndRequest{
		Agent:      c.Param("agent"),
		SessionKey: req.SessionID,
		JobID:      req.JobID,
	})
	if err != nil {
		s.logger.Error("summary failed",
			zap.String("agent", c.Param("agent")),
			zap.String("session", req.SessionID),
			zap.Error(err),
		)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"summary": res.Summary,
	})
}

func (s *Server) events(c echo.Context) error {
	s.hub.Serve(c.Response(), c.Request(), c.Param("id"))
	return nil
}
