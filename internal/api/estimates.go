package api

import (
	"net/http"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/response"
)

type statusRequest struct {
	Status domain.EstimateStatus `json:"status"`
}

func (a *API) listEstimates(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	opts, page, err := listOptions(r, "name", "status", "created_at")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	estimates, total, err := a.estimates.List(r.Context(), auth.GetCurrentUser(r.Context()), projectID, opts)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderPage(w, estimates, response.NewPageMeta(page.Page, page.PerPage, total))
}

func (a *API) createEstimate(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.EstimateInput
	if !a.decode(w, r, &in) {
		return
	}
	e, err := a.estimates.Create(r.Context(), auth.GetCurrentUser(r.Context()), projectID, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, e)
}

func (a *API) getEstimate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "estimateID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	e, err := a.estimates.Get(r.Context(), auth.GetCurrentUser(r.Context()), id)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	a.renderTagged(w, r, e)
}

func (a *API) updateEstimate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "estimateID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.EstimateInput
	if !a.decode(w, r, &in) {
		return
	}
	e, err := a.estimates.Update(r.Context(), auth.GetCurrentUser(r.Context()), id, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, e)
}

func (a *API) deleteEstimate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "estimateID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	if err := a.estimates.Delete(r.Context(), auth.GetCurrentUser(r.Context()), id); err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) changeEstimateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "estimateID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var req statusRequest
	if !a.decode(w, r, &req) {
		return
	}
	e, err := a.estimates.ChangeStatus(r.Context(), auth.GetCurrentUser(r.Context()), id, req.Status)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, e)
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	estimateID, err := pathID(r, "estimateID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.GroupInput
	if !a.decode(w, r, &in) {
		return
	}
	g, err := a.estimates.CreateGroup(r.Context(), auth.GetCurrentUser(r.Context()), estimateID, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, g)
}

func (a *API) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "groupID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.GroupInput
	if !a.decode(w, r, &in) {
		return
	}
	g, err := a.estimates.UpdateGroup(r.Context(), auth.GetCurrentUser(r.Context()), id, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, g)
}

func (a *API) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "groupID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	if err := a.estimates.DeleteGroup(r.Context(), auth.GetCurrentUser(r.Context()), id); err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) createLine(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "groupID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.LineInput
	if !a.decode(w, r, &in) {
		return
	}
	l, err := a.estimates.CreateLine(r.Context(), auth.GetCurrentUser(r.Context()), groupID, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, l)
}

func (a *API) updateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "lineID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.LineInput
	if !a.decode(w, r, &in) {
		return
	}
	l, err := a.estimates.UpdateLine(r.Context(), auth.GetCurrentUser(r.Context()), id, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, l)
}

func (a *API) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "lineID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	if err := a.estimates.DeleteLine(r.Context(), auth.GetCurrentUser(r.Context()), id); err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderNoContent(w)
}
