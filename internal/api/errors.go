package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/domain"
	webcontext "github.com/buildplan/buildplan/internal/web/context"
	"github.com/buildplan/buildplan/internal/web/query"
	"github.com/buildplan/buildplan/internal/web/request"
	"github.com/buildplan/buildplan/internal/web/response"
)

// renderError maps service and request errors to HTTP responses. Anything
// unrecognised is logged and rendered as 500 without details.
func (a *API) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bodyErr  *request.BodyError
		paramErr *query.ParamError
		valErr   *domain.ValidationErrors
	)

	switch {
	case errors.As(err, &bodyErr):
		response.RenderError(w, bodyErr.Status, bodyErr)
	case errors.As(err, &paramErr):
		response.RenderBadRequest(w, paramErr.Error())
	case errors.As(err, &valErr):
		response.RenderValidationError(w, valErr.Fields)
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.RenderUnauthorized(w, "Invalid email or password")
	case errors.Is(err, domain.ErrNotFound):
		response.RenderNotFound(w, "")
	case errors.Is(err, domain.ErrForbidden):
		response.RenderForbidden(w, "")
	case errors.Is(err, domain.ErrEmailTaken):
		response.RenderConflict(w, "Email is already registered")
	case errors.Is(err, domain.ErrNotEditable):
		response.RenderConflict(w, "Estimate can only be changed while it is a draft")
	case errors.Is(err, domain.ErrConflict):
		response.RenderConflict(w, "The request conflicts with the current state of the resource")
	default:
		a.logger.Error("request failed",
			zap.String("request_id", webcontext.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		response.RenderInternalError(w)
	}
}
