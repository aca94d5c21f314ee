package webhook

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// maxBodyBytes bounds the size of an accepted delivery.
const maxBodyBytes = 5 << 20

// Dispatcher decides what happens to a parsed event.
type Dispatcher interface {
	// Dispatch returns the queued run ID, or "" when the event did not match the trigger allow-list.
	Dispatch(ev trigger.Event) (runID string, err error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ev trigger.Event) (string, error)

func (f DispatcherFunc) Dispatch(ev trigger.Event) (string, error) { return f(ev) }

// Response is the JSON body returned for every accepted delivery.
type Response struct {
	Status string `json:"status"` // queued or ignored
	RunID  string `json:"run_id,omitempty"`
	Event  string `json:"event,omitempty"`
	Branch string `json:"branch,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Handler receives webhook deliveries for one forge.
type Handler struct {
	cfg          config.WebhookConfig
	dispatcher   Dispatcher
	errorAdapter *errors.HTTPErrorAdapter
	logger       *slog.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg config.WebhookConfig, d Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, dispatcher: d, errorAdapter: errors.NewHTTPErrorAdapter(logger), logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("failed to read webhook body").WithCause(err).Build())
		return
	}
	if err := ValidateSignature(h.cfg.Forge, r.Header, body, h.cfg.Secret); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	ev, err := Parse(h.cfg.Forge, r.Header, body)
	if err != nil {
		if stderrors.Is(err, ErrIgnored) {
			reason, _ := contextString(err, "reason")
			kind, _ := contextString(err, "event")
			h.logger.Debug("Webhook ignored", logfields.Forge(string(h.cfg.Forge)), logfields.Event(kind), slog.String("reason", reason))
			writeJSON(w, http.StatusAccepted, Response{Status: "ignored", Event: kind, Reason: reason})
			return
		}
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	h.logger.Info("Webhook received",
		logfields.Forge(string(h.cfg.Forge)),
		logfields.Event(string(ev.Kind)),
		logfields.Branch(ev.Branch),
		logfields.Revision(ev.Revision),
		logfields.Repository(ev.Repository))

	runID, err := h.dispatcher.Dispatch(ev)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	resp := Response{Status: "queued", RunID: runID, Event: string(ev.Kind), Branch: ev.Branch}
	if runID == "" {
		resp.Status = "ignored"
		resp.Reason = "branch not in trigger allow-list"
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func contextString(err error, key string) (string, bool) {
	c, ok := errors.AsClassified(err)
	if !ok {
		return "", false
	}
	return c.Context().GetString(key)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
