package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
)

type fakeUsers struct {
	mu    sync.Mutex
	seq   int
	byID  map[string]*domain.User
	email map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*domain.User{}, email: map[string]string{}}
}

func (f *fakeUsers) Create(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.email[u.Email]; ok {
		return fmt.Errorf("create user: %w: users_email_key", store.ErrUniqueViolation)
	}
	f.seq++
	u.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", f.seq)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.byID[u.ID] = &cp
	f.email[u.Email] = u.ID
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	id, ok := f.email[email]
	f.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.GetByID(ctx, id)
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id string, p domain.Profile) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.FirstName, u.LastName, u.Phone, u.Company = p.FirstName, p.LastName, p.Phone, p.Company
	cp := *u
	return &cp, nil
}

// mustUser registers a user directly in the fake and returns its ID
func (f *fakeUsers) mustUser(email string) string {
	u := &domain.User{Email: email, FirstName: "Test", LastName: "User"}
	if err := f.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u.ID
}

type fakeProjects struct {
	mu           sync.Mutex
	seq          int
	projects     map[string]*domain.Project
	participants map[string]map[string]bool
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: map[string]*domain.Project{}, participants: map[string]map[string]bool{}}
}

func (f *fakeProjects) Create(_ context.Context, builderID string, in domain.ProjectInput) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p := &domain.Project{
		ID: fmt.Sprintf("p-%d", f.seq), Name: in.Name, Description: in.Description, Address: in.Address,
		Status: in.Status, StartDate: in.StartDate, EndDate: in.EndDate, BuilderID: builderID,
		CreatedAt: time.Now(),
	}
	f.projects[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) Get(_ context.Context, id string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) Update(_ context.Context, id string, in domain.ProjectInput) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Name, p.Description, p.Address, p.Status = in.Name, in.Description, in.Address, in.Status
	p.StartDate, p.EndDate = in.StartDate, in.EndDate
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.projects, id)
	delete(f.participants, id)
	return nil
}

func (f *fakeProjects) SetOwner(_ context.Context, id string, ownerID *string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.OwnerID = ownerID
	if ownerID != nil {
		delete(f.participants[id], *ownerID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) AddParticipant(_ context.Context, projectID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.participants[projectID] == nil {
		f.participants[projectID] = map[string]bool{}
	}
	f.participants[projectID][userID] = true
	return nil
}

func (f *fakeProjects) RemoveParticipant(_ context.Context, projectID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.participants[projectID][userID] {
		return store.ErrNotFound
	}
	delete(f.participants[projectID], userID)
	return nil
}

func (f *fakeProjects) Role(_ context.Context, projectID, userID string) (domain.ProjectRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return "", store.ErrNotFound
	}
	switch {
	case p.BuilderID == userID:
		return domain.RoleBuilder, nil
	case p.OwnerID != nil && *p.OwnerID == userID:
		return domain.RoleOwner, nil
	case f.participants[projectID][userID]:
		return domain.RoleParticipant, nil
	}
	return "", nil
}

func (f *fakeProjects) Members(_ context.Context, projectID string) ([]*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[projectID]
	members := []*domain.Member{{UserID: p.BuilderID, Role: domain.RoleBuilder}}
	if p.OwnerID != nil {
		members = append(members, &domain.Member{UserID: *p.OwnerID, Role: domain.RoleOwner})
	}
	ids := make([]string, 0, len(f.participants[projectID]))
	for id := range f.participants[projectID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		members = append(members, &domain.Member{UserID: id, Role: domain.RoleParticipant})
	}
	return members, nil
}

func (f *fakeProjects) ListForUser(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Project, int, error) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.projects))
	for id := range f.projects {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	sort.Strings(ids)

	var out []*domain.Project
	for _, id := range ids {
		role, _ := f.Role(ctx, id, userID)
		if role == "" {
			continue
		}
		p, _ := f.Get(ctx, id)
		if opts.Status != "" && string(p.Status) != opts.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

type fakeEstimates struct {
	mu        sync.Mutex
	seq       int
	estimates map[string]*domain.Estimate
	groups    map[string]*domain.EstimateGroup
	lines     map[string]*domain.EstimateLine
}

func newFakeEstimates() *fakeEstimates {
	return &fakeEstimates{
		estimates: map[string]*domain.Estimate{},
		groups:    map[string]*domain.EstimateGroup{},
		lines:     map[string]*domain.EstimateLine{},
	}
}

func (f *fakeEstimates) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeEstimates) Create(ctx context.Context, projectID, createdBy string, in domain.EstimateInput) (*domain.Estimate, error) {
	f.mu.Lock()
	e := &domain.Estimate{
		ID: f.nextID("e"), ProjectID: projectID, Name: in.Name, Notes: in.Notes,
		Status: domain.EstimateDraft, CreatedBy: createdBy,
	}
	f.estimates[e.ID] = e
	f.mu.Unlock()
	return f.Get(ctx, e.ID)
}

func (f *fakeEstimates) Get(_ context.Context, id string) (*domain.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.estimates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEstimates) GetTree(ctx context.Context, id string) (*domain.Estimate, error) {
	e, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e.Groups = []*domain.EstimateGroup{}
	for _, g := range f.groups {
		if g.EstimateID != id {
			continue
		}
		gc := *g
		gc.Lines = []*domain.EstimateLine{}
		for _, l := range f.lines {
			if l.GroupID == g.ID {
				lc := *l
				gc.Lines = append(gc.Lines, &lc)
			}
		}
		sort.Slice(gc.Lines, func(i, j int) bool { return gc.Lines[i].Position < gc.Lines[j].Position })
		e.Groups = append(e.Groups, &gc)
	}
	sort.Slice(e.Groups, func(i, j int) bool { return e.Groups[i].Position < e.Groups[j].Position })
	e.ComputeTotals()
	return e, nil
}

func (f *fakeEstimates) ListByProject(_ context.Context, projectID string, opts store.ListOptions) ([]*domain.Estimate, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Estimate
	for _, e := range f.estimates {
		if e.ProjectID == projectID && (opts.Status == "" || string(e.Status) == opts.Status) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (f *fakeEstimates) Update(ctx context.Context, id string, in domain.EstimateInput) (*domain.Estimate, error) {
	f.mu.Lock()
	e, ok := f.estimates[id]
	if ok {
		e.Name, e.Notes = in.Name, in.Notes
	}
	f.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.Get(ctx, id)
}

func (f *fakeEstimates) SetStatus(_ context.Context, id string, from, to domain.EstimateStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.estimates[id]
	if !ok || e.Status != from {
		return store.ErrNotFound
	}
	e.Status = to
	return nil
}

func (f *fakeEstimates) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.estimates[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.estimates, id)
	return nil
}

func (f *fakeEstimates) CreateGroup(_ context.Context, estimateID string, in domain.GroupInput) (*domain.EstimateGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &domain.EstimateGroup{ID: f.nextID("g"), EstimateID: estimateID, Name: in.Name, Position: in.Position}
	f.groups[g.ID] = g
	cp := *g
	return &cp, nil
}

func (f *fakeEstimates) GetGroup(_ context.Context, id string) (*domain.EstimateGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeEstimates) UpdateGroup(ctx context.Context, id string, in domain.GroupInput) (*domain.EstimateGroup, error) {
	f.mu.Lock()
	g, ok := f.groups[id]
	if ok {
		g.Name, g.Position = in.Name, in.Position
	}
	f.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.GetGroup(ctx, id)
}

func (f *fakeEstimates) DeleteGroup(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.groups, id)
	return nil
}

func (f *fakeEstimates) CreateLine(_ context.Context, groupID string, in domain.LineInput) (*domain.EstimateLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &domain.EstimateLine{
		ID: f.nextID("l"), GroupID: groupID, Description: in.Description, Quantity: in.Quantity,
		Unit: in.Unit, UnitCostCents: in.UnitCostCents, Position: in.Position,
		LineTotalCents: domain.LineTotal(in.Quantity, in.UnitCostCents),
	}
	f.lines[l.ID] = l
	cp := *l
	return &cp, nil
}

func (f *fakeEstimates) GetLine(_ context.Context, id string) (*domain.EstimateLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeEstimates) UpdateLine(ctx context.Context, id string, in domain.LineInput) (*domain.EstimateLine, error) {
	f.mu.Lock()
	l, ok := f.lines[id]
	if ok {
		l.Description, l.Quantity, l.Unit, l.UnitCostCents, l.Position =
			in.Description, in.Quantity, in.Unit, in.UnitCostCents, in.Position
		l.LineTotalCents = domain.LineTotal(in.Quantity, in.UnitCostCents)
	}
	f.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.GetLine(ctx, id)
}

func (f *fakeEstimates) DeleteLine(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lines[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.lines, id)
	return nil
}

type fakeTokens struct {
	err error
}

func (f fakeTokens) GenerateToken(userID, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-" + userID, nil
}

func (fakeTokens) TTL() time.Duration { return time.Hour }

type auditEvent struct {
	kind   string
	fields []string
}

type recordingAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (r *recordingAudit) record(kind string, fields ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, auditEvent{kind: kind, fields: fields})
}

func (r *recordingAudit) LogRateLimitViolation(clientKey, path string) {
	r.record("violation", clientKey, path)
}

func (r *recordingAudit) LogAccountLockout(clientKey, reason string) {
	r.record("lockout", clientKey, reason)
}

func (r *recordingAudit) LogLoginSuccess(userID, clientKey string) {
	r.record("login_success", userID, clientKey)
}

func (r *recordingAudit) LogLoginFailure(email, clientKey, reason string) {
	r.record("login_failure", email, clientKey, reason)
}

func (r *recordingAudit) LogRegistration(userID, clientKey string) {
	r.record("registration", userID, clientKey)
}
