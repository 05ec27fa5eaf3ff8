package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/davidbz/tonepipe/internal/config"
	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/observability"
	"github.com/davidbz/tonepipe/internal/pipeline"
	"github.com/davidbz/tonepipe/internal/usage"
)

// Handler handles HTTP requests.
type Handler struct {
	orchestrator *pipeline.Orchestrator
	meter        *usage.Meter
	limits       *config.LimitsConfig
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(orchestrator *pipeline.Orchestrator, meter *usage.Meter, limits *config.LimitsConfig) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		meter:        meter,
		limits:       limits,
	}
}

// rewriteBody is the inbound request payload. User identity and tier
// arrive in headers; authentication itself happens upstream.
type rewriteBody struct {
	Text       string                 `json:"text"`
	Dimensions []domain.ToneDimension `json:"dimensions"`
	Guardrails domain.Guardrails      `json:"guardrails"`
	Model      string                 `json:"model"`
}

// HandleRewrite processes rewrite requests.
func (h *Handler) HandleRewrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "user not specified in X-User-Id header", http.StatusBadRequest)
		return
	}
	tier := r.Header.Get("X-User-Tier")
	if tier == "" {
		tier = usage.TierFree
	}

	ctx = observability.WithUserID(ctx, userID)

	var body rewriteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, body.Model)

	if err := h.validate(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger := observability.FromContext(ctx)
	logger.Info("rewrite request received",
		zap.String("model", body.Model),
		zap.String("tier", tier),
		zap.Int("text_length", len(body.Text)),
	)

	req := &domain.RewriteRequest{
		Text:       body.Text,
		Dimensions: body.Dimensions,
		Guardrails: body.Guardrails,
		Model:      body.Model,
		UserID:     userID,
		Tier:       tier,
	}

	result, err := h.orchestrator.Rewrite(ctx, req)
	if err != nil {
		if domain.IsQuotaDenied(err) {
			logger.Info("rewrite denied", zap.Error(err))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
			return
		}

		logger.Error("rewrite failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	logger.Info("rewrite succeeded",
		zap.Int("tokens", result.TokensUsed),
		zap.Int64("processing_ms", result.ProcessingMS),
		zap.Int("violations", len(result.Violations)),
	)

	writeJSON(w, http.StatusOK, result)
}

// HandleUsage returns the caller's current month usage snapshot.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "user not specified in X-User-Id header", http.StatusBadRequest)
		return
	}
	tier := r.Header.Get("X-User-Tier")
	if tier == "" {
		tier = usage.TierFree
	}

	snapshot, err := h.meter.GetUsage(ctx, userID, tier)
	if err != nil {
		observability.FromContext(ctx).Error("usage lookup failed", zap.Error(err))
		http.Error(w, "usage state unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// validate rejects malformed requests before the pipeline runs. The
// normalizer clamps silently; the API layer is the strict gate.
func (h *Handler) validate(body *rewriteBody) error {
	if body.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if h.limits != nil && h.limits.MaxTextLength > 0 && len(body.Text) > h.limits.MaxTextLength {
		return fmt.Errorf("text exceeds maximum length of %d characters", h.limits.MaxTextLength)
	}
	if body.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	for _, dim := range body.Dimensions {
		if dim.ID == "" {
			return fmt.Errorf("dimension id cannot be empty")
		}
		min, max := dim.Range()
		if min >= max {
			return fmt.Errorf("dimension %s has an invalid range [%d, %d]", dim.ID, min, max)
		}
		if dim.Value < min || dim.Value > max {
			return fmt.Errorf("dimension %s value %d is outside [%d, %d]", dim.ID, dim.Value, min, max)
		}
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
