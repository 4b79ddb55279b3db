package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tiende/backend/internal/service"
)

// ---------------------------------------------------------------------------
// Mock ReconcileService
// ---------------------------------------------------------------------------

type mockReconcileService struct {
	processNotificationFunc func(ctx context.Context, rawBody []byte) error
}

func (m *mockReconcileService) ProcessNotification(ctx context.Context, rawBody []byte) error {
	if m.processNotificationFunc != nil {
		return m.processNotificationFunc(ctx, rawBody)
	}
	return nil
}

func postITN(h *ITNHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payfast", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// POST /api/webhooks/payfast
// ---------------------------------------------------------------------------

func TestITNHandler_Webhook_OK(t *testing.T) {
	var got []byte
	h := NewITNHandler(&mockReconcileService{
		processNotificationFunc: func(_ context.Context, rawBody []byte) error {
			got = rawBody
			return nil
		},
	})

	body := "m_payment_id=mp-1&payment_status=COMPLETE&amount_gross=103.25&signature=abc"
	rec := postITN(h, body)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("expected plain OK body, got %q", rec.Body.String())
	}
	if string(got) != body {
		t.Error("raw body must be passed through unmodified")
	}
}

func TestITNHandler_Webhook_BadSignature(t *testing.T) {
	h := NewITNHandler(&mockReconcileService{
		processNotificationFunc: func(_ context.Context, _ []byte) error {
			return fmt.Errorf("%w: digest mismatch", service.ErrBadSignature)
		},
	})

	rec := postITN(h, "m_payment_id=mp-1&signature=bad")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bad_signature") {
		t.Errorf("expected bad_signature error code, got %q", rec.Body.String())
	}
}

func TestITNHandler_Webhook_ValidationFailed(t *testing.T) {
	h := NewITNHandler(&mockReconcileService{
		processNotificationFunc: func(_ context.Context, _ []byte) error {
			return fmt.Errorf("%w: amount mismatch", service.ErrValidation)
		},
	})

	rec := postITN(h, "m_payment_id=mp-1&payment_status=COMPLETE&amount_gross=9.99&signature=abc")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "validation_failed") {
		t.Errorf("expected validation_failed error code, got %q", rec.Body.String())
	}
}

func TestITNHandler_Webhook_UnknownReference(t *testing.T) {
	h := NewITNHandler(&mockReconcileService{
		processNotificationFunc: func(_ context.Context, _ []byte) error {
			return service.ErrUnknownReference
		},
	})

	rec := postITN(h, "m_payment_id=mp-ghost&payment_status=COMPLETE&amount_gross=1.00&signature=abc")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown_reference") {
		t.Errorf("expected unknown_reference error code, got %q", rec.Body.String())
	}
}

func TestITNHandler_Webhook_InfrastructureError(t *testing.T) {
	h := NewITNHandler(&mockReconcileService{
		processNotificationFunc: func(_ context.Context, _ []byte) error {
			return errors.New("connection refused")
		},
	})

	rec := postITN(h, "m_payment_id=mp-1&payment_status=COMPLETE&amount_gross=1.00&signature=abc")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 so the gateway retries, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "itn_processing_failed") {
		t.Errorf("expected itn_processing_failed error code, got %q", rec.Body.String())
	}
}
