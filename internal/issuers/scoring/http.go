// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/veriscore/internal/platform/middleware"
	requestutil "github.com/taibuivan/veriscore/internal/platform/request"
	"github.com/taibuivan/veriscore/internal/platform/respond"
	"github.com/taibuivan/veriscore/internal/platform/sec"
	"github.com/taibuivan/veriscore/internal/platform/validate"
	"github.com/taibuivan/veriscore/pkg/pagination"
)

// # Definitions & Constructors

// Handler implements the trust-score HTTP endpoints: the issuer-facing
// score and history reads plus the operator-gated flag, launch and
// recalculation operations.
type Handler struct {
	service *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] configured with scoring routes.
//
// # Endpoints
//   - GET  /me                       : Current score of the caller.
//   - GET  /me/history               : Paginated audit trail of the caller.
//   - POST /{issuerID}/flags         : Operator flags an issuer.
//   - POST /{issuerID}/launches      : Operator records a launch outcome.
//   - POST /{issuerID}/recalculate   : Operator forces a recalculation.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.getScore)
		r.Get("/me/history", handler.getHistory)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Use(middleware.RequireRole(sec.RoleOperator))
		r.Post("/{issuerID}/flags", handler.flagIssuer)
		r.Post("/{issuerID}/launches", handler.recordLaunch)
		r.Post("/{issuerID}/recalculate", handler.recalculate)
	})

	return router
}

// # Request Payloads

type flagRequest struct {
	Type     string `json:"type"`
	Severity int    `json:"severity"`
	Note     string `json:"note"`
}

type launchRequest struct {
	Name       string     `json:"name"`
	Successful bool       `json:"successful"`
	LaunchedAt *time.Time `json:"launched_at"`
}

/*
GetScore returns the authenticated issuer's current score aggregate.

GET /api/v1/scores/me

Response:
  - 200: Score: Per-category values, total and tier
  - 404: ErrNotFound: The issuer has never been scored
*/
func (handler *Handler) getScore(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	score, err := handler.service.GetScore(request.Context(), issuerID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, score)
}

/*
GetHistory returns the authenticated issuer's audit trail, newest first.

GET /api/v1/scores/me/history?page=&limit=

Response:
  - 200: []ScoreHistory with pagination metadata
*/
func (handler *Handler) getHistory(writer http.ResponseWriter, request *http.Request) {
	issuerID, err := requestutil.RequiredIssuerID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params := pagination.FromRequest(request)
	records, total, err := handler.service.GetHistory(request.Context(), issuerID, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, records, pagination.NewMeta(params.Page, params.Limit, total))
}

/*
FlagIssuer records a behavior flag against an issuer.

POST /api/v1/scores/{issuerID}/flags

Description: Operator-only. The flag lowers the wallet-behavior category on
the recalculation that follows.

Request:
  - Body: flagRequest (Type, Severity, Note)

Response:
  - 201: Flag and the recalculated score
  - 400: ErrInvalidJSON: Unknown type or severity
  - 403: ErrForbidden: Caller is not an operator
*/
func (handler *Handler) flagIssuer(writer http.ResponseWriter, request *http.Request) {
	issuerID := chi.URLParam(request, "issuerID")

	var input flagRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("type", input.Type).
		MaxLen("note", input.Note, 500)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	flag, score, err := handler.service.FlagIssuer(request.Context(), issuerID, FlagInput{
		Type:     FlagType(input.Type),
		Severity: FlagSeverity(input.Severity),
		Note:     input.Note,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]interface{}{
		"flag":  flag,
		"score": score,
	})
}

/*
RecordLaunch stores a launch outcome for an issuer.

POST /api/v1/scores/{issuerID}/launches

Description: Operator-only. Missing launched_at defaults to now.

Request:
  - Body: launchRequest (Name, Successful, LaunchedAt)

Response:
  - 201: Launch and the recalculated score
  - 400: ErrInvalidJSON: Missing name
  - 403: ErrForbidden: Caller is not an operator
*/
func (handler *Handler) recordLaunch(writer http.ResponseWriter, request *http.Request) {
	issuerID := chi.URLParam(request, "issuerID")

	var input launchRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("name", input.Name).
		MaxLen("name", input.Name, 128)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	launchedAt := time.Time{}
	if input.LaunchedAt != nil {
		launchedAt = *input.LaunchedAt
	}

	launch, score, err := handler.service.RecordLaunch(request.Context(), issuerID, LaunchInput{
		Name:       input.Name,
		Successful: input.Successful,
		LaunchedAt: launchedAt,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]interface{}{
		"launch": launch,
		"score":  score,
	})
}

/*
Recalculate forces a full score rebuild for an issuer.

POST /api/v1/scores/{issuerID}/recalculate

Response:
  - 200: Score: The rebuilt aggregate
  - 403: ErrForbidden: Caller is not an operator
  - 404: ErrNotFound: Unknown issuer
*/
func (handler *Handler) recalculate(writer http.ResponseWriter, request *http.Request) {
	issuerID := chi.URLParam(request, "issuerID")

	score, err := handler.service.Recalculate(request.Context(), issuerID, SourceManual)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, score)
}
