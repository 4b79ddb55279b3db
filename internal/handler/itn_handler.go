package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tiende/backend/internal/service"
)

// ITNHandler は PayFast ITN Webhook の HTTP ハンドラ
type ITNHandler struct {
	svc service.ReconcileService
}

// NewITNHandler は ITNHandler を生成する
func NewITNHandler(svc service.ReconcileService) *ITNHandler {
	return &ITNHandler{svc: svc}
}

// Webhook handles POST /api/webhooks/payfast
// 生のボディをそのまま署名検証に渡すため、ここではパースしない。
// 200 を返さない限りゲートウェイはリトライし続ける。
func (h *ITNHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_body_failed")
		return
	}

	if err := h.svc.ProcessNotification(r.Context(), body); err != nil {
		switch {
		case errors.Is(err, service.ErrBadSignature):
			writeError(w, http.StatusBadRequest, "bad_signature")
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_failed")
		case errors.Is(err, service.ErrUnknownReference):
			writeError(w, http.StatusNotFound, "unknown_reference")
		default:
			slog.Error("itn processing failed", "error", err)
			writeError(w, http.StatusInternalServerError, "itn_processing_failed")
		}
		return
	}

	// the gateway expects a plain 200; anything else triggers a retry
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK"))
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
