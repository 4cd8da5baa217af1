package api

import (
	"net/http"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/service"
	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/response"
)

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	opts, page, err := listOptions(r, "name", "status", "start_date", "created_at")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	projects, total, err := a.projects.List(r.Context(), auth.GetCurrentUser(r.Context()), opts)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderPage(w, projects, response.NewPageMeta(page.Page, page.PerPage, total))
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	var in domain.ProjectInput
	if !a.decode(w, r, &in) {
		return
	}
	p, err := a.projects.Create(r.Context(), auth.GetCurrentUser(r.Context()), in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, p)
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	p, err := a.projects.Get(r.Context(), auth.GetCurrentUser(r.Context()), id)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	a.renderTagged(w, r, p)
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.ProjectInput
	if !a.decode(w, r, &in) {
		return
	}
	p, err := a.projects.Update(r.Context(), auth.GetCurrentUser(r.Context()), id, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, p)
}

func (a *API) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	if err := a.projects.Delete(r.Context(), auth.GetCurrentUser(r.Context()), id); err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	members, err := a.projects.Members(r.Context(), auth.GetCurrentUser(r.Context()), id)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, map[string]interface{}{"data": members})
}

// assignOwner sets the project owner; an empty body object clears it
func (a *API) assignOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var ref service.UserRef
	if !a.decode(w, r, &ref) {
		return
	}
	p, err := a.projects.AssignOwner(r.Context(), auth.GetCurrentUser(r.Context()), id, ref)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, p)
}

func (a *API) addParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var ref service.UserRef
	if !a.decode(w, r, &ref) {
		return
	}
	members, err := a.projects.AddParticipant(r.Context(), auth.GetCurrentUser(r.Context()), id, ref)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, map[string]interface{}{"data": members})
}

func (a *API) removeParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	if err := a.projects.RemoveParticipant(r.Context(), auth.GetCurrentUser(r.Context()), id, userID); err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderNoContent(w)
}
