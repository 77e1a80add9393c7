package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
	"github.com/kyungseok/payment-es-go-practical/common/idempotency"
	"github.com/kyungseok/payment-es-go-practical/internal/domain"
	"github.com/kyungseok/payment-es-go-practical/internal/service"
)

// 콜백 멱등성 키 보관 기간
const callbackDedupTTL = 24 * time.Hour

// HTTPHandler HTTP 핸들러
type HTTPHandler struct {
	payments service.PaymentService
	dedup    idempotency.Store
	logger   *zap.Logger
}

// NewHTTPHandler HTTP 핸들러 생성 (dedup은 nil 허용)
func NewHTTPHandler(payments service.PaymentService, dedup idempotency.Store, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		payments: payments,
		dedup:    dedup,
		logger:   logger,
	}
}

// Register 라우트 등록
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", h.CreatePayment)
	mux.HandleFunc("POST /payments/callback", h.ProcessCallback)
	mux.HandleFunc("POST /payments/{paymentId}/retry", h.RetryPayment)
	mux.HandleFunc("GET /payments/{paymentId}/events", h.PaymentHistory)
	mux.HandleFunc("GET /health", h.Health)
}

// CreatePaymentRequest 결제 생성 요청
type CreatePaymentRequest struct {
	AmountMinor   int64  `json:"amountMinor"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

// CallbackRequest 프로바이더 콜백 요청
type CallbackRequest struct {
	CallbackID        string `json:"callbackId,omitempty"`
	PaymentID         string `json:"paymentId"`
	Status            string `json:"status"`
	ProviderReference string `json:"providerReference,omitempty"`
	Channel           string `json:"channel,omitempty"`
	AmountMinor       int64  `json:"amountMinor,omitempty"`
	ErrorCode         string `json:"errorCode,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

// SnapshotResponse 결제 스냅샷 응답
type SnapshotResponse struct {
	PaymentID         string     `json:"paymentId"`
	AmountMinor       int64      `json:"amountMinor"`
	Currency          string     `json:"currency"`
	Description       string     `json:"description,omitempty"`
	CustomerEmail     string     `json:"customerEmail,omitempty"`
	Attempt           int        `json:"attempt"`
	State             string     `json:"state"`
	CheckoutURL       string     `json:"checkoutUrl,omitempty"`
	CheckoutExpiresAt *time.Time `json:"checkoutExpiresAt,omitempty"`
	ProviderReference string     `json:"providerReference,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	Version           int64      `json:"version"`
}

// HistoryEntry 이벤트 이력 항목
type HistoryEntry struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Version    int64          `json:"version"`
	Payload    domain.Payload `json:"payload"`
}

// HistoryResponse 이벤트 이력 응답
type HistoryResponse struct {
	PaymentID string         `json:"paymentId"`
	Events    []HistoryEntry `json:"events"`
}

// ErrorResponse 에러 응답
type ErrorResponse struct {
	StatusCode int            `json:"statusCode"`
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// CreatePayment 결제 생성 API
func (h *HTTPHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}

	if len(req.Currency) != 3 {
		h.respondError(w, http.StatusBadRequest, "validation", "currency must be a 3-letter code", nil)
		return
	}
	if req.CustomerEmail != "" && !strings.Contains(req.CustomerEmail, "@") {
		h.respondError(w, http.StatusBadRequest, "validation", "customerEmail must be a valid email address", nil)
		return
	}

	snapshot, err := h.payments.CreatePayment(r.Context(), service.CreatePaymentCommand{
		AmountMinor:   req.AmountMinor,
		Currency:      strings.ToUpper(req.Currency),
		Description:   req.Description,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, toSnapshotResponse(snapshot))
}

// ProcessCallback 프로바이더 콜백 API
func (h *HTTPHandler) ProcessCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}

	if req.PaymentID == "" {
		h.respondError(w, http.StatusBadRequest, "validation", "paymentId is required", nil)
		return
	}
	if req.Channel != "" && !domain.Channel(req.Channel).Valid() {
		h.respondError(w, http.StatusBadRequest, "validation", "channel must be one of web, mobile, widget", nil)
		return
	}

	// 프로바이더 재전송 시 중복 반영 방지
	if h.dedup != nil && req.CallbackID != "" {
		reserved, err := h.dedup.Reserve(r.Context(), req.CallbackID, callbackDedupTTL)
		if err != nil {
			h.logger.Warn("callback dedup unavailable, proceeding without it", zap.Error(err))
		} else if !reserved {
			h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
			return
		}
	}

	snapshot, err := h.payments.ProcessProviderCallback(r.Context(), service.ProviderCallbackCommand{
		PaymentID:         req.PaymentID,
		Status:            service.ProviderStatus(req.Status),
		ProviderReference: req.ProviderReference,
		Channel:           domain.Channel(req.Channel),
		AmountMinor:       req.AmountMinor,
		ErrorCode:         req.ErrorCode,
		ErrorMessage:      req.ErrorMessage,
	})
	if err != nil {
		// 처리 실패 시 키를 반납해 프로바이더 재전송이 다시 처리되게 한다
		if h.dedup != nil && req.CallbackID != "" {
			if releaseErr := h.dedup.Release(r.Context(), req.CallbackID); releaseErr != nil {
				h.logger.Warn("failed to release callback dedup key", zap.Error(releaseErr))
			}
		}
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, toSnapshotResponse(snapshot))
}

// RetryPayment 결제 재시도 API
func (h *HTTPHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := r.PathValue("paymentId")
	if paymentID == "" {
		h.respondError(w, http.StatusBadRequest, "validation", "paymentId is required", nil)
		return
	}

	snapshot, err := h.payments.RetryPayment(r.Context(), paymentID)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, toSnapshotResponse(snapshot))
}

// PaymentHistory 이벤트 이력 조회 API
func (h *HTTPHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	paymentID := r.PathValue("paymentId")

	events, err := h.payments.GetHistory(r.Context(), paymentID)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	entries := make([]HistoryEntry, 0, len(events))
	for i, evt := range events {
		entries = append(entries, HistoryEntry{
			Type:       string(evt.Type()),
			OccurredAt: evt.OccurredAt,
			Version:    int64(i) + 1,
			Payload:    evt.Payload,
		})
	}

	h.respondJSON(w, http.StatusOK, HistoryResponse{
		PaymentID: paymentID,
		Events:    entries,
	})
}

// Health 헬스 체크 API
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func toSnapshotResponse(snapshot domain.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		PaymentID:         snapshot.ID,
		AmountMinor:       snapshot.AmountMinor,
		Currency:          snapshot.Currency,
		Description:       snapshot.Description,
		CustomerEmail:     snapshot.CustomerEmail,
		Attempt:           snapshot.Attempt,
		State:             string(snapshot.State),
		CheckoutURL:       snapshot.CheckoutURL,
		ProviderReference: snapshot.ProviderReference,
		LastError:         snapshot.LastError,
		CreatedAt:         snapshot.CreatedAt,
		UpdatedAt:         snapshot.UpdatedAt,
		Version:           snapshot.Version,
	}
	if !snapshot.CheckoutExpiresAt.IsZero() {
		expiresAt := snapshot.CheckoutExpiresAt
		resp.CheckoutExpiresAt = &expiresAt
	}
	return resp
}

var kindStatusMap = map[errors.Kind]int{
	errors.KindValidation:     http.StatusBadRequest,
	errors.KindNotFound:       http.StatusNotFound,
	errors.KindConflict:       http.StatusConflict,
	errors.KindInvariant:      http.StatusUnprocessableEntity,
	errors.KindInfrastructure: http.StatusServiceUnavailable,
	errors.KindUnexpected:     http.StatusInternalServerError,
}

func (h *HTTPHandler) respondAppError(w http.ResponseWriter, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		h.logger.Error("unhandled error during request processing", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, string(errors.KindUnexpected), "internal server error", nil)
		return
	}

	status, ok := kindStatusMap[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	h.respondError(w, status, string(appErr.Kind), appErr.Message, appErr.Details)
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, status int, kind, message string, details map[string]any) {
	h.respondJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      kind,
		Message:    message,
		Details:    details,
	})
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
