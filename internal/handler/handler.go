// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/Shivanand-hulikatti/library-reservations/internal/model"
	"github.com/Shivanand-hulikatti/library-reservations/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReservationHandler holds all HTTP handlers for the reservation API.
type ReservationHandler struct {
	svc    *service.ReservationService
	logger *slog.Logger
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(svc *service.ReservationService, logger *slog.Logger) *ReservationHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReservationHandler{svc: svc, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusOf maps an error class to an HTTP status.
func statusOf(class model.Class) int {
	switch class {
	case model.ClassValidation:
		return http.StatusBadRequest
	case model.ClassBusiness:
		return http.StatusConflict
	case model.ClassConflict:
		return http.StatusUnprocessableEntity
	case model.ClassNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail writes err using its class. Internal errors are logged and their
// detail is kept out of the response.
func (h *ReservationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	class := model.ClassOf(err)
	status := statusOf(class)
	if class == model.ClassInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, model.CodeOf(err), "internal server error")
		return
	}
	writeError(w, status, model.CodeOf(err), err.Error())
}

func (h *ReservationHandler) badBody(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_input", "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body: "+err.Error())
}

// reservationID reads the id from the path, or from ?id= for older clients.
func reservationID(r *http.Request) string {
	if id := chi.URLParam(r, "id"); id != "" {
		return id
	}
	return r.URL.Query().Get("id")
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateReservation handles POST /reservations
// Records a PENDING borrow request.
func (h *ReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateReservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}

	res, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateReservationResponse{ReservationID: res.ID})
}

// ListReservations handles GET /reservations?user_id=&status=
func (h *ReservationHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.svc.List(r.Context(), q.Get("user_id"), q.Get("status"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if views == nil {
		views = []model.ReservationView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// GetReservation handles GET /reservations/{id}
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), reservationID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// TransitionReservation handles PUT /reservations/{id} and PUT /reservations?id=
// Moves the reservation to the requested status.
func (h *ReservationHandler) TransitionReservation(w http.ResponseWriter, r *http.Request) {
	var req model.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badBody(w, err)
		return
	}

	res, err := h.svc.Transition(r.Context(), reservationID(r), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteReservation handles DELETE /reservations/{id} and DELETE /reservations?id=
func (h *ReservationHandler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	id := reservationID(r)
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DeleteReservationResponse{Deleted: id})
}

// SweepOverdue handles POST /reservations/overdue-sweep
// Runs the overdue sweep immediately instead of waiting for the ticker.
func (h *ReservationHandler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SweepOverdue(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SweepResponse{Transitioned: n})
}

// GetBook handles GET /books/{id}
// Returns the book with its copy count and derived availability.
func (h *ReservationHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.BookResponse{Book: b, Availability: b.Availability()})
}

// ListUserLoans handles GET /users/{id}/loans
func (h *ReservationHandler) ListUserLoans(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if views == nil {
		views = []model.ReservationView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
