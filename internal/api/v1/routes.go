// Package v1 provides the delivery date API v1 endpoints.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geekuality/posti-delivery-dates/internal/api/common"
	"github.com/geekuality/posti-delivery-dates/internal/service"
)

// Routes handles HTTP requests for the v1 endpoints.
type Routes struct {
	service service.DeliveryService
}

// NewRoutes creates a new Routes instance with the given service.
func NewRoutes(svc service.DeliveryService) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates and configures the HTTP router for the v1 endpoints.
func Router(svc service.DeliveryService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/codes", routes.listCodes)
	r.Post("/codes", routes.registerCode)
	r.Route("/codes/{code}", func(r chi.Router) {
		r.Get("/", routes.getCode)
		r.Get("/status", routes.getStatus)
		r.Post("/refresh", routes.refreshCode)
		r.Delete("/", routes.deleteCode)
	})

	return r
}

// registerRequest is the body of POST /codes.
type registerRequest struct {
	PostalCode string `json:"postalCode"`
}

// listCodesResponse is the body of GET /codes.
type listCodesResponse struct {
	Codes []string `json:"codes"`
}

// listCodes handles GET /api/v1/codes
func (routes *Routes) listCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := routes.service.ListCodes(r.Context())
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if codes == nil {
		codes = []string{}
	}
	common.WriteJSONResponse(w, listCodesResponse{Codes: codes}, http.StatusOK)
}

// registerCode handles POST /api/v1/codes
func (routes *Routes) registerCode(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "Invalid request body: expected JSON with postalCode", http.StatusBadRequest)
		return
	}

	reading, err := routes.service.RegisterCode(r.Context(), req.PostalCode)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), registrationStatusCode(err))
		return
	}

	common.WriteJSONResponse(w, reading, http.StatusCreated)
}

// getCode handles GET /api/v1/codes/{code}
func (routes *Routes) getCode(w http.ResponseWriter, r *http.Request) {
	code, ok := routes.codeParam(w, r)
	if !ok {
		return
	}

	reading, err := routes.service.GetReading(r.Context(), code)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), lookupStatusCode(err))
		return
	}
	common.WriteJSONResponse(w, reading, http.StatusOK)
}

// getStatus handles GET /api/v1/codes/{code}/status
func (routes *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	code, ok := routes.codeParam(w, r)
	if !ok {
		return
	}

	status, err := routes.service.GetStatus(r.Context(), code)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), lookupStatusCode(err))
		return
	}
	common.WriteJSONResponse(w, status, http.StatusOK)
}

// refreshCode handles POST /api/v1/codes/{code}/refresh
func (routes *Routes) refreshCode(w http.ResponseWriter, r *http.Request) {
	code, ok := routes.codeParam(w, r)
	if !ok {
		return
	}

	if err := routes.service.RefreshCode(r.Context(), code); err != nil {
		common.WriteErrorResponse(w, err.Error(), lookupStatusCode(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// deleteCode handles DELETE /api/v1/codes/{code}
func (routes *Routes) deleteCode(w http.ResponseWriter, r *http.Request) {
	code, ok := routes.codeParam(w, r)
	if !ok {
		return
	}

	if err := routes.service.DeleteCode(r.Context(), code); err != nil {
		common.WriteErrorResponse(w, err.Error(), lookupStatusCode(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (routes *Routes) codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code, err := common.PostalCodeParam(r, "code")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return code, true
}

// registrationStatusCode maps setup-flow failures to HTTP statuses. A
// malformed code is the caller's fault; an unreachable source is upstream's;
// a well-formed code the source has no data for is unprocessable.
func registrationStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidPostalCode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCodeAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func lookupStatusCode(err error) int {
	if errors.Is(err, service.ErrCodeNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
