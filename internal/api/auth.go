package api

import (
	"net/http"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/service"
	"github.com/buildplan/buildplan/internal/web/auth"
	"github.com/buildplan/buildplan/internal/web/response"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !a.decode(w, r, &in) {
		return
	}
	sess, err := a.auth.Register(r.Context(), in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, sess)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if !a.decode(w, r, &in) {
		return
	}
	sess, err := a.auth.Login(r.Context(), in)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, sess)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	u, err := a.auth.Me(r.Context(), auth.GetCurrentUser(r.Context()))
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, u)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if !a.decode(w, r, &p) {
		return
	}
	u, err := a.auth.UpdateProfile(r.Context(), auth.GetCurrentUser(r.Context()), p)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, u)
}
