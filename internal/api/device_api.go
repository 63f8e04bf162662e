package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Service is the slice of the Dispatcher the API layer uses.
type Service interface {
	AddDevice(ctx context.Context, deviceID, transportID, deliveryKey string) error
	AssociateDevice(ctx context.Context, deviceID, userID string) error
	DissociateDevice(ctx context.Context, deviceID, userID string) error
	SendToUser(ctx context.Context, userID, eventID string, msg dispatch.Message, opts *dispatch.Options) error
	TransactionsForEvent(ctx context.Context, eventID string) ([]dispatch.Transaction, error)
}

type DeviceAPI struct {
	Service Service
	Logger  *slog.Logger
}

func NewDeviceAPI(service Service, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		Service: service,
		Logger:  logger,
	}
}

// --- Device registration ---

type RegisterDeviceRequest struct {
	DeviceID    string `json:"device_id"`
	TransportID string `json:"transport_id"`
	DeliveryKey string `json:"delivery_key"`
}

func (api *DeviceAPI) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := authedUser(r); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" || req.TransportID == "" || req.DeliveryKey == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "device_id, transport_id and delivery_key are required")
		return
	}

	if err := api.Service.AddDevice(ctx, req.DeviceID, req.TransportID, req.DeliveryKey); err != nil {
		api.Logger.Error("failed to register device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Association ---

type AssociationRequest struct {
	DeviceID string `json:"device_id"`
}

func (api *DeviceAPI) Associate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := authedUser(r)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AssociationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing device_id")
		return
	}

	if err := api.Service.AssociateDevice(ctx, req.DeviceID, user.String()); err != nil {
		api.Logger.Error("failed to associate device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Device associated", "user", user, "device_id", req.DeviceID)

	w.WriteHeader(http.StatusNoContent)
}

func (api *DeviceAPI) Dissociate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := authedUser(r)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AssociationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeviceID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing device_id")
		return
	}

	// Dissociation is idempotent at the store level; surface only real
	// storage failures.
	if err := api.Service.DissociateDevice(ctx, req.DeviceID, user.String()); err != nil {
		api.Logger.Warn("failed to dissociate device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Direct send ---

type SendRequest struct {
	EventID string            `json:"event_id"`
	Message dispatch.Message  `json:"message"`
	Options *dispatch.Options `json:"options,omitempty"`
}

// Send pushes an event to every device of the authenticated user.
func (api *DeviceAPI) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := authedUser(r)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EventID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing event_id")
		return
	}

	if err := api.Service.SendToUser(ctx, user.String(), req.EventID, req.Message, req.Options); err != nil {
		var fanErr *dispatch.FanOutError
		if errors.As(err, &fanErr) {
			api.Logger.Error("fan-out had failures", "event_id", req.EventID, "err", err)
			response.WriteJSONError(w, http.StatusBadGateway, "one or more deliveries failed")
			return
		}
		api.Logger.Error("send failed", "event_id", req.EventID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "send failed")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// --- Audit ---

// EventTransactions lists the delivery attempts recorded for an event.
func (api *DeviceAPI) EventTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := authedUser(r); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID := r.PathValue("eventID")
	if eventID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing eventID")
		return
	}

	transactions, err := api.Service.TransactionsForEvent(ctx, eventID)
	if err != nil {
		api.Logger.Error("failed to fetch transactions", "event_id", eventID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"event_id":     eventID,
		"transactions": transactions,
	})
}

// --- Helpers ---

func authedUser(r *http.Request) (urn.URN, bool) {
	var zero urn.URN
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		// The auth middleware only sets the handle when the token carries
		// a handle claim; every valid token carries the user ID.
		userID, ok = middleware.GetUserIDFromContext(r.Context())
	}
	if !ok {
		return zero, false
	}
	userURN, err := urn.Parse(userID)
	if err != nil {
		return zero, false
	}
	return userURN, true
}
