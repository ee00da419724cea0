package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	capability "relaycreator/contexts/identity-access/capability-service"
	capabilityerrors "relaycreator/contexts/identity-access/capability-service/domain/errors"
	capabilityhttp "relaycreator/contexts/identity-access/capability-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "relaycreator/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	capability capability.Module
}

func New(
	capabilityModule capability.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		capability: capabilityModule,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /api/capability/v1/types", s.guarded(s.handleListTypes))
	s.mux.HandleFunc("POST /api/capability/v1/requests", s.guarded(s.handleSubmitRequest))
	s.mux.HandleFunc("GET /api/capability/v1/requests", s.guarded(s.handleListRequests))
	s.mux.HandleFunc("POST /api/capability/v1/requests/{request_id}/decide", s.guarded(s.handleDecideRequest))
	s.mux.HandleFunc("GET /api/capability/v1/grants", s.guarded(s.handleListGrants))
	s.mux.HandleFunc("GET /api/capability/v1/me", s.guarded(s.handleMyPermissions))
	s.mux.HandleFunc("POST /api/capability/v1/disclaimer/accept", s.guarded(s.handleAcceptDisclaimer))
	s.mux.HandleFunc("POST /api/capability/v1/users/{user_id}/grants/assign", s.guarded(s.handleAssignGrant))
	s.mux.HandleFunc("POST /api/capability/v1/users/{user_id}/grants/revoke", s.guarded(s.handleRevokeGrant))
	s.mux.HandleFunc("POST /api/capability/v1/check", s.guarded(s.handleCheckCapability))
	s.mux.HandleFunc("GET /api/capability/v1/users/{user_id}/tier", s.guarded(s.handleResolveTier))
}

// guarded enforces the headers every API route requires.
func (s *Server) guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAuthorization(w, r) || !requireRequestID(w, r) {
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.capability.Handler.ListTypesHandler(r.Context()))
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	var req capabilityhttp.SubmitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCapabilityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.capability.Handler.SubmitRequestHandler(
		r.Context(),
		userID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	resp, err := s.capability.Handler.ListRequestsHandler(r.Context(), actorID, r.URL.Query().Get("status"))
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDecideRequest(w http.ResponseWriter, r *http.Request) {
	deciderID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	var req capabilityhttp.DecideRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCapabilityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.capability.Handler.DecideRequestHandler(
		r.Context(),
		r.PathValue("request_id"),
		deciderID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	resp, err := s.capability.Handler.ListGrantsHandler(r.Context(), actorID)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	resp, err := s.capability.Handler.MyPermissionsHandler(r.Context(), userID)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcceptDisclaimer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	var req capabilityhttp.AcceptDisclaimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCapabilityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.capability.Handler.AcceptDisclaimerHandler(r.Context(), userID, req)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssignGrant(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	var req capabilityhttp.AssignGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCapabilityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.capability.Handler.AssignGrantHandler(
		r.Context(),
		r.PathValue("user_id"),
		adminID,
		req,
	)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireCallerID(w, r)
	if !ok {
		return
	}

	var req capabilityhttp.RevokeGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCapabilityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.capability.Handler.RevokeGrantHandler(
		r.Context(),
		r.PathValue("user_id"),
		adminID,
		req,
	)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckCapability(w http.ResponseWriter, r *http.Request) {
	var req capabilityhttp.CheckCapabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCapabilityError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	req.UserID = resolveSubjectID(req.UserID, r)

	resp, err := s.capability.Handler.CheckCapabilityHandler(r.Context(), req)
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolveTier(w http.ResponseWriter, r *http.Request) {
	resp, err := s.capability.Handler.ResolveTierHandler(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeCapabilityDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeCapabilityDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capabilityerrors.ErrUnknownPermissionType):
		writeCapabilityError(w, http.StatusUnprocessableEntity, "unknown_permission_type", err.Error())
	case errors.Is(err, capabilityerrors.ErrInvalidUserID),
		errors.Is(err, capabilityerrors.ErrInvalidCapability),
		errors.Is(err, capabilityerrors.ErrInvalidDecision),
		errors.Is(err, capabilityerrors.ErrInvalidStatusFilter):
		writeCapabilityError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, capabilityerrors.ErrRequestNotFound),
		errors.Is(err, capabilityerrors.ErrGrantNotFound):
		writeCapabilityError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, capabilityerrors.ErrPendingRequestExists),
		errors.Is(err, capabilityerrors.ErrGrantAlreadyActive),
		errors.Is(err, capabilityerrors.ErrRequestAlreadyDecided),
		errors.Is(err, capabilityerrors.ErrIdempotencyConflict):
		writeCapabilityError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, capabilityerrors.ErrIdempotencyKeyRequired):
		writeCapabilityError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, capabilityerrors.ErrForbidden):
		writeCapabilityError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		writeCapabilityError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeCapabilityError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, capabilityhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requireAuthorization(w http.ResponseWriter, r *http.Request) bool {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		writeCapabilityError(w, http.StatusUnauthorized, "unauthorized", "Authorization bearer token is required")
		return false
	}
	return true
}

func requireRequestID(w http.ResponseWriter, r *http.Request) bool {
	if strings.TrimSpace(r.Header.Get("X-Request-Id")) == "" {
		writeCapabilityError(w, http.StatusBadRequest, "request_id_required", "X-Request-Id header is required")
		return false
	}
	return true
}

func requireCallerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeCapabilityError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func resolveSubjectID(bodyUserID string, r *http.Request) string {
	if strings.TrimSpace(bodyUserID) != "" {
		return bodyUserID
	}
	if fromHeader := strings.TrimSpace(r.Header.Get("X-User-Id")); fromHeader != "" {
		return fromHeader
	}
	return strings.TrimSpace(r.Header.Get("X-Subject-Id"))
}
