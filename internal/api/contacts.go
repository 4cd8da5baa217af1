package api

import (
	"net/http"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/response"
)

func (a *API) listContacts(w http.ResponseWriter, r *http.Request) {
	opts, page, err := listOptions(r, "name", "company", "created_at")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	contacts, total, err := a.contacts.List(r.Context(), auth.GetCurrentUser(r.Context()), opts)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderPage(w, contacts, response.NewPageMeta(page.Page, page.PerPage, total))
}

func (a *API) createContact(w http.ResponseWriter, r *http.Request) {
	var in domain.ContactInput
	if !a.decode(w, r, &in) {
		return
	}
	c, err := a.contacts.Create(r.Context(), auth.GetCurrentUser(r.Context()), in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, c)
}

func (a *API) getContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contactID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	c, err := a.contacts.Get(r.Context(), auth.GetCurrentUser(r.Context()), id)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, c)
}

func (a *API) updateContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contactID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	var in domain.ContactInput
	if !a.decode(w, r, &in) {
		return
	}
	c, err := a.contacts.Update(r.Context(), auth.GetCurrentUser(r.Context()), id, in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, c)
}

func (a *API) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contactID")
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	if err := a.contacts.Delete(r.Context(), auth.GetCurrentUser(r.Context()), id); err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderNoContent(w)
}
