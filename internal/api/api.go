// Package api exposes the services over HTTP with a chi router
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/metrics"
	"github.com/buildplan/buildplan/internal/service"
	"github.com/buildplan/buildplan/internal/store"
	"github.com/buildplan/buildplan/internal/web/cache"
	"github.com/buildplan/buildplan/internal/web/middleware"
	"github.com/buildplan/buildplan/internal/web/query"
	"github.com/buildplan/buildplan/internal/web/ratelimit"
	"github.com/buildplan/buildplan/internal/web/request"
	"github.com/buildplan/buildplan/internal/web/response"
)

// AuthService registers and signs in users
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, in service.LoginInput) (*service.Session, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, p domain.Profile) (*domain.User, error)
}

// ContactService manages the caller's contacts
type ContactService interface {
	Create(ctx context.Context, userID string, in domain.ContactInput) (*domain.Contact, error)
	Get(ctx context.Context, userID, id string) (*domain.Contact, error)
	Update(ctx context.Context, userID, id string, in domain.ContactInput) (*domain.Contact, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Contact, int, error)
}

// ProjectService manages projects and membership
type ProjectService interface {
	Create(ctx context.Context, userID string, in domain.ProjectInput) (*domain.Project, error)
	Get(ctx context.Context, userID, id string) (*domain.Project, error)
	List(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Project, int, error)
	Update(ctx context.Context, userID, id string, in domain.ProjectInput) (*domain.Project, error)
	Delete(ctx context.Context, userID, id string) error
	AssignOwner(ctx context.Context, userID, id string, ref service.UserRef) (*domain.Project, error)
	AddParticipant(ctx context.Context, userID, id string, ref service.UserRef) ([]*domain.Member, error)
	RemoveParticipant(ctx context.Context, userID, id, participantID string) error
	Members(ctx context.Context, userID, id string) ([]*domain.Member, error)
}

// EstimateService manages estimates, groups and lines
type EstimateService interface {
	Create(ctx context.Context, userID, projectID string, in domain.EstimateInput) (*domain.Estimate, error)
	Get(ctx context.Context, userID, id string) (*domain.Estimate, error)
	List(ctx context.Context, userID, projectID string, opts store.ListOptions) ([]*domain.Estimate, int, error)
	Update(ctx context.Context, userID, id string, in domain.EstimateInput) (*domain.Estimate, error)
	Delete(ctx context.Context, userID, id string) error
	ChangeStatus(ctx context.Context, userID, id string, next domain.EstimateStatus) (*domain.Estimate, error)
	CreateGroup(ctx context.Context, userID, estimateID string, in domain.GroupInput) (*domain.EstimateGroup, error)
	UpdateGroup(ctx context.Context, userID, id string, in domain.GroupInput) (*domain.EstimateGroup, error)
	DeleteGroup(ctx context.Context, userID, id string) error
	CreateLine(ctx context.Context, userID, groupID string, in domain.LineInput) (*domain.EstimateLine, error)
	UpdateLine(ctx context.Context, userID, id string, in domain.LineInput) (*domain.EstimateLine, error)
	DeleteLine(ctx context.Context, userID, id string) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the API to its services and infrastructure
type Config struct {
	Auth      AuthService
	Contacts  ContactService
	Projects  ProjectService
	Estimates EstimateService

	// Tokens validates bearer tokens on authenticated routes
	Tokens middleware.TokenValidator
	// Limiter guards the authentication endpoints
	Limiter ratelimit.AttemptLimiter
	// FailOpen lets requests through when the limiter errors
	FailOpen bool

	// Health is pinged by /health; nil reports healthy
	Health Pinger

	Logger *zap.Logger
	// Metrics may be nil, which disables the metrics endpoint
	Metrics     *metrics.Metrics
	MetricsPath string
}

// API holds the HTTP handlers
type API struct {
	auth      AuthService
	contacts  ContactService
	projects  ProjectService
	estimates EstimateService
	health    Pinger
	parser    *request.Parser
	logger    *zap.Logger
}

// baseChain is the middleware every request passes through, outermost first
func baseChain(cfg Config) *middleware.Chain {
	return middleware.NewChain(
		middleware.RequestID(),
		middleware.Recovery(cfg.Logger),
		middleware.Logging(cfg.Logger, cfg.Metrics),
	)
}

// NewRouter builds the HTTP handler for the whole API
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	a := &API{
		auth:      cfg.Auth,
		contacts:  cfg.Contacts,
		projects:  cfg.Projects,
		estimates: cfg.Estimates,
		health:    cfg.Health,
		parser:    request.NewParser(),
		logger:    cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(baseChain(cfg).Handlers()...)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderMethodNotAllowed(w)
	})

	r.Get("/health", a.healthCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(middleware.RateLimitWithConfig(middleware.RateLimitConfig{
					Limiter:  cfg.Limiter,
					KeyFunc:  middleware.ClientKey,
					Logger:   cfg.Logger,
					Metrics:  cfg.Metrics,
					FailOpen: cfg.FailOpen,
				}))
			}
			r.Post("/auth/register", a.register)
			r.Post("/auth/login", a.login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens))

			r.Get("/auth/me", a.me)
			r.Put("/auth/me", a.updateProfile)

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", a.listContacts)
				r.Post("/", a.createContact)
				r.Get("/{contactID}", a.getContact)
				r.Put("/{contactID}", a.updateContact)
				r.Delete("/{contactID}", a.deleteContact)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", a.listProjects)
				r.Post("/", a.createProject)
				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", a.getProject)
					r.Put("/", a.updateProject)
					r.Delete("/", a.deleteProject)
					r.Get("/members", a.listMembers)
					r.Put("/owner", a.assignOwner)
					r.Post("/participants", a.addParticipant)
					r.Delete("/participants/{userID}", a.removeParticipant)
					r.Get("/estimates", a.listEstimates)
					r.Post("/estimates", a.createEstimate)
				})
			})

			r.Route("/estimates/{estimateID}", func(r chi.Router) {
				r.Get("/", a.getEstimate)
				r.Put("/", a.updateEstimate)
				r.Delete("/", a.deleteEstimate)
				r.Post("/status", a.changeEstimateStatus)
				r.Post("/groups", a.createGroup)
			})

			r.Route("/groups/{groupID}", func(r chi.Router) {
				r.Put("/", a.updateGroup)
				r.Delete("/", a.deleteGroup)
				r.Post("/lines", a.createLine)
			})

			r.Route("/lines/{lineID}", func(r chi.Router) {
				r.Put("/", a.updateLine)
				r.Delete("/", a.deleteLine)
			})
		})
	})

	return r
}

// pathID returns the UUID path parameter name. Malformed IDs cannot name an
// existing row and are reported as not found.
func pathID(r *http.Request, name string) (string, error) {
	id := chi.URLParam(r, name)
	if uuid.Validate(id) != nil {
		return "", fmt.Errorf("%w: malformed %s", domain.ErrNotFound, name)
	}
	return id, nil
}

// listOptions parses the common list query parameters
func listOptions(r *http.Request, sortable ...string) (store.ListOptions, query.Page, error) {
	params, err := query.ParseList(r, sortable...)
	if err != nil {
		return store.ListOptions{}, query.Page{}, err
	}
	return store.ListOptions{
		Limit:  params.Page.Limit(),
		Offset: params.Page.Offset(),
		From:   params.Range.From,
		To:     params.Range.To,
		Search: params.Search,
		Status: r.URL.Query().Get("status"),
		Sort:   params.Sort,
	}, params.Page, nil
}

// decode reads the JSON body into v, rendering the error on failure
func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := a.parser.ParseJSON(w, r, v); err != nil {
		a.renderError(w, r, err)
		return false
	}
	return true
}

// renderTagged writes a single resource with an ETag so clients can
// revalidate with If-None-Match
func (a *API) renderTagged(w http.ResponseWriter, r *http.Request, v interface{}) {
	if err := cache.RenderJSON(w, r, v); err != nil {
		a.renderError(w, r, err)
	}
}
