package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/call"
)

// TurnHandler is the telephony layer's view of the turn service.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req call.TurnRequest) (call.TurnResult, error)
	EndCall(ctx context.Context, req call.EndRequest) (call.EndResult, error)
}

// Config identifies the Twilio account and which agent answers the phone.
type Config struct {
	AccountSID string
	AuthToken  string
	Agent      string
}

// Handlers serves the Twilio voice webhooks. Turns run text-only; the reply
// text is spoken back with TwiML Say, and Twilio's Record verb with its
// silence timeout stands in for the browser's silence detector.
type Handlers struct {
	cfg    Config
	turns  TurnHandler
	client *http.Client
	logger *zap.Logger
}

func NewHandlers(cfg Config, turns TurnHandler, logger *zap.Logger) *Handlers {
	if cfg.Agent == "" {
		cfg.Agent = "recruiter"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		cfg:    cfg,
		turns:  turns,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (h *Handlers) Register(e *echo.Echo) {
	e.POST("/twilio/voice", h.voice)
	e.POST("/twilio/turn", h.turn)
	e.POST("/twilio/status", h.status)
}

func sessionKey(params map[string]string) string {
	return "tw-" + params["CallSid"]
}

// voice answers an incoming call: speak the agent's greeting, then record
// the caller's first answer.
func (h *Handlers) voice(c echo.Context) error {
	params, ok := c.Get(paramsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "missing twilio parameters")
	}

	res, err := h.turns.HandleTurn(c.Request().Context(), call.TurnRequest{
		Agent:      h.cfg.Agent,
		SessionKey: sessionKey(params),
		TextOnly:   true,
	})
	if err != nil {
		h.logger.Error("phone greeting failed", zap.String("call_sid", params["CallSid"]), zap.Error(err))
		return c.String(http.StatusInternalServerError, "greeting failed")
	}
	return h.sayAndRecord(c, res.SpokenText)
}

// turn receives one recorded answer, runs it through the loop, speaks the
// reply and records the next answer.
func (h *Handlers) turn(c echo.Context) error {
	params, ok := c.Get(paramsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "missing twilio parameters")
	}

	clip, err := h.fetchRecording(c.Request().Context(), params["RecordingUrl"])
	if err != nil {
		h.logger.Warn("recording fetch failed", zap.String("call_sid", params["CallSid"]), zap.Error(err))
		return h.sayAndRecord(c, "")
	}

	res, err := h.turns.HandleTurn(c.Request().Context(), call.TurnRequest{
		Agent:      h.cfg.Agent,
		SessionKey: sessionKey(params),
		Clip:       clip,
		TextOnly:   true,
	})
	if err != nil {
		h.logger.Warn("phone turn failed", zap.String("call_sid", params["CallSid"]), zap.Error(err))
		return h.sayAndRecord(c, "")
	}
	return h.sayAndRecord(c, res.SpokenText)
}

// status fires when the call ends; close the session and log the summary.
func (h *Handlers) status(c echo.Context) error {
	params, ok := c.Get(paramsKey).(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "missing twilio parameters")
	}
	if params["CallStatus"] != "completed" {
		return c.NoContent(http.StatusOK)
	}

	res, err := h.turns.EndCall(c.Request().Context(), call.EndRequest{
		Agent:      h.cfg.Agent,
		SessionKey: sessionKey(params),
	})
	if err != nil {
		h.logger.Warn("phone call end failed", zap.String("call_sid", params["CallSid"]), zap.Error(err))
		return c.NoContent(http.StatusOK)
	}
	h.logger.Info("phone call ended",
		zap.String("call_sid", params["CallSid"]),
		zap.String("summary", res.Summary),
	)
	return c.NoContent(http.StatusOK)
}

// sayAndRecord responds with TwiML: speak text (when present), then record
// the caller until ~1.2s of silence, posting the clip back to /twilio/turn.
func (h *Handlers) sayAndRecord(c echo.Context, text string) error {
	var elements []twiml.Element
	if text != "" {
		elements = append(elements, &twiml.VoiceSay{Message: text})
	}
	elements = append(elements, &twiml.VoiceRecord{
		Action:    "/twilio/turn",
		Method:    "POST",
		Timeout:   "2",
		MaxLength: "60",
		PlayBeep:  "false",
		Trim:      "trim-silence",
	})

	response, err := twiml.Voice(elements)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// fetchRecording downloads the turn's audio from Twilio.
func (h *Handlers) fetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	if recordingURL == "" {
		return nil, fmt.Errorf("telephony: no recording url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(h.cfg.AccountSID, h.cfg.AuthToken)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: fetch recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telephony: recording status=%d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
