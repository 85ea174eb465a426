package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"walldraft/internal/domain"
	"walldraft/internal/metrics"
)

// Mock implementations for testing. They keep copies so callers cannot alias stored
// records, the same way a real store would behave.

type MockDraftRepository struct {
	mu     sync.Mutex
	drafts map[string]*domain.Draft
}

func NewMockDraftRepository() *MockDraftRepository {
	return &MockDraftRepository{drafts: make(map[string]*domain.Draft)}
}

func cloneDraft(d *domain.Draft) *domain.Draft {
	out := *d
	out.SharedWith = append([]string{}, d.SharedWith...)
	out.WallData = append(json.RawMessage(nil), d.WallData...)
	if d.ShareToken != nil {
		token := *d.ShareToken
		out.ShareToken = &token
	}
	if d.ShareTokenExpires != nil {
		expires := *d.ShareTokenExpires
		out.ShareTokenExpires = &expires
	}
	return &out
}

func (m *MockDraftRepository) Create(ctx context.Context, draft *domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if draft.ID == "" {
		return errors.New("draft ID is required")
	}
	m.drafts[draft.ID] = cloneDraft(draft)
	return nil
}

func (m *MockDraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	return cloneDraft(d), nil
}

func (m *MockDraftRepository) list(match func(*domain.Draft) bool) []*domain.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Draft
	for _, d := range m.drafts {
		if match(d) {
			out = append(out, cloneDraft(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *MockDraftRepository) ListByOwner(ctx context.Context, userID string) ([]*domain.Draft, error) {
	return m.list(func(d *domain.Draft) bool { return d.UserID == userID }), nil
}

func (m *MockDraftRepository) ListSharedWith(ctx context.Context, userID string) ([]*domain.Draft, error) {
	return m.list(func(d *domain.Draft) bool { return d.IsSharedWith(userID) }), nil
}

func (m *MockDraftRepository) CountByOwner(ctx context.Context, userID string) (int, error) {
	return len(m.list(func(d *domain.Draft) bool { return d.UserID == userID })), nil
}

func (m *MockDraftRepository) UpdateContent(ctx context.Context, id string, update domain.DraftUpdate) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	if update.Name != nil {
		d.Name = *update.Name
	}
	if update.WallData != nil {
		d.WallData = append(json.RawMessage(nil), update.WallData...)
	}
	if update.PreviewURL != nil {
		d.PreviewURL = *update.PreviewURL
	}
	d.Version++
	return cloneDraft(d), nil
}

func (m *MockDraftRepository) UpdateShareState(ctx context.Context, id string, state domain.ShareState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return domain.ErrDraftNotFound
	}
	d.IsPublic = state.IsPublic
	d.ShareToken = state.ShareToken
	d.ShareTokenExpires = state.ShareTokenExpires
	d.LinkPermission = state.LinkPermission
	d.Version++
	return nil
}

func (m *MockDraftRepository) AddSharedUsers(ctx context.Context, id string, userIDs []string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	for _, u := range userIDs {
		if !slices.Contains(d.SharedWith, u) {
			d.SharedWith = append(d.SharedWith, u)
		}
	}
	d.Version++
	return cloneDraft(d), nil
}

func (m *MockDraftRepository) RemoveSharedUser(ctx context.Context, id string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return domain.ErrDraftNotFound
	}
	d.SharedWith = slices.DeleteFunc(d.SharedWith, func(s string) bool { return s == userID })
	d.Version++
	return nil
}

func (m *MockDraftRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return domain.ErrDraftNotFound
	}
	delete(m.drafts, id)
	return nil
}

type MockPlanRepository struct {
	mu    sync.Mutex
	plans map[string]*domain.Plan
}

func NewMockPlanRepository() *MockPlanRepository {
	return &MockPlanRepository{plans: make(map[string]*domain.Plan)}
}

func clonePlan(p *domain.Plan) *domain.Plan {
	out := *p
	out.Decors = append([]string{}, p.Decors...)
	return &out
}

func (m *MockPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.Name == plan.Name {
			return domain.ErrConflict
		}
	}
	m.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (m *MockPlanRepository) find(match func(*domain.Plan) bool) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if match(p) {
			return clonePlan(p), nil
		}
	}
	return nil, domain.ErrPlanNotFound
}

func (m *MockPlanRepository) GetByName(ctx context.Context, name string) (*domain.Plan, error) {
	return m.find(func(p *domain.Plan) bool { return p.Name == name })
}

func (m *MockPlanRepository) GetDefault(ctx context.Context) (*domain.Plan, error) {
	return m.find(func(p *domain.Plan) bool { return p.IsDefault })
}

func (m *MockPlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Plan
	for _, p := range m.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[plan.ID]; !ok {
		return domain.ErrPlanNotFound
	}
	m.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (m *MockPlanRepository) ClearDefault(ctx context.Context, exceptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.plans {
		if id != exceptID {
			p.IsDefault = false
		}
	}
	return nil
}

func (m *MockPlanRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return domain.ErrPlanNotFound
	}
	delete(m.plans, id)
	return nil
}

type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User

	// beforeUpdatePlan runs ahead of every UpdatePlan, outside the lock.
	beforeUpdatePlan func(userID, planID string)
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.users[user.ID] = &u
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *MockUserRepository) UpdatePlan(ctx context.Context, userID string, planID string) error {
	if m.beforeUpdatePlan != nil {
		m.beforeUpdatePlan(userID, planID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PlanID = planID
	return nil
}

func (m *MockUserRepository) Search(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	var out []*domain.User
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Email), q) || strings.Contains(strings.ToLower(u.Name), q) {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MockUpgradeRepository struct {
	mu       sync.Mutex
	requests []*domain.PlanUpgradeRequest
}

func NewMockUpgradeRepository() *MockUpgradeRepository {
	return &MockUpgradeRepository{}
}

func cloneRequest(r *domain.PlanUpgradeRequest) *domain.PlanUpgradeRequest {
	out := *r
	return &out
}

func (m *MockUpgradeRepository) Create(ctx context.Context, req *domain.PlanUpgradeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, cloneRequest(req))
	return nil
}

func (m *MockUpgradeRepository) GetByID(ctx context.Context, id string) (*domain.PlanUpgradeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.ID == id {
			return cloneRequest(r), nil
		}
	}
	return nil, domain.ErrRequestNotFound
}

// newestFirst walks the requests in reverse insertion order.
func (m *MockUpgradeRepository) newestFirst(match func(*domain.PlanUpgradeRequest) bool) []*domain.PlanUpgradeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PlanUpgradeRequest
	for i := len(m.requests) - 1; i >= 0; i-- {
		if match(m.requests[i]) {
			out = append(out, cloneRequest(m.requests[i]))
		}
	}
	return out
}

func (m *MockUpgradeRepository) ListByUser(ctx context.Context, userID string) ([]*domain.PlanUpgradeRequest, error) {
	return m.newestFirst(func(r *domain.PlanUpgradeRequest) bool { return r.UserID == userID }), nil
}

func (m *MockUpgradeRepository) List(ctx context.Context, status *domain.UpgradeStatus) ([]*domain.PlanUpgradeRequest, error) {
	return m.newestFirst(func(r *domain.PlanUpgradeRequest) bool { return status == nil || r.Status == *status }), nil
}

func (m *MockUpgradeRepository) Resolve(ctx context.Context, id string, status domain.UpgradeStatus, adminID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.ID != id {
			continue
		}
		if r.Status != domain.UpgradeStatusPending {
			return domain.ErrConflict
		}
		r.Status = status
		r.ResolvedBy = &adminID
		r.ResolvedAt = &at
		return nil
	}
	return domain.ErrRequestNotFound
}

type MockImageRepository struct {
	mu     sync.Mutex
	images []*domain.DraftImage
}

func NewMockImageRepository() *MockImageRepository {
	return &MockImageRepository{}
}

func (m *MockImageRepository) Create(ctx context.Context, image *domain.DraftImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img := *image
	m.images = append(m.images, &img)
	return nil
}

func (m *MockImageRepository) CountByDraft(ctx context.Context, draftID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, img := range m.images {
		if img.DraftID == draftID {
			n++
		}
	}
	return n, nil
}

func (m *MockImageRepository) DeleteByDraft(ctx context.Context, draftID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = slices.DeleteFunc(m.images, func(img *domain.DraftImage) bool { return img.DraftID == draftID })
	return nil
}

type MockStorageService struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func NewMockStorageService() *MockStorageService {
	return &MockStorageService{objects: make(map[string][]byte)}
}

func (m *MockStorageService) Upload(ctx context.Context, path string, contentType string, file io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[path] = data
	m.mu.Unlock()
	return "https://cdn.test/" + path, nil
}

type MockBroadcaster struct {
	mu    sync.Mutex
	calls []string
}

func (m *MockBroadcaster) Broadcast(draftID string, wallData json.RawMessage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, draftID+":"+string(wallData))
	return 0
}

func (m *MockBroadcaster) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Mock logger for testing
type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{
		messages: []string{},
	}
}

func (m *MockLogger) add(line string) {
	m.mu.Lock()
	m.messages = append(m.messages, line)
	m.mu.Unlock()
}

func (m *MockLogger) Info(msg string, args ...interface{}) {
	m.add("INFO: " + msg)
}

func (m *MockLogger) Error(msg string, err error, args ...interface{}) {
	m.add("ERROR: " + msg + " - " + err.Error())
}

func (m *MockLogger) Debug(msg string, args ...interface{}) {
	m.add("DEBUG: " + msg)
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.add("WARN: " + msg)
}

func (m *MockLogger) Contains(line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.messages, line)
}

// testEnv wires every service over the in-memory mocks with a mock clock.
type testEnv struct {
	clock    *quartz.Mock
	drafts   *MockDraftRepository
	plans    *MockPlanRepository
	users    *MockUserRepository
	upgrades *MockUpgradeRepository
	images   *MockImageRepository
	storage  *MockStorageService
	bcast    *MockBroadcaster
	logger   *MockLogger
	registry *prometheus.Registry

	resolver *AccessResolver
	quota    *quotaService
	share    *shareService
	planSvc  *planService
	upgrade  *upgradeService
	draftSvc *draftService
	userSvc  *userService

	free *domain.Plan
	pro  *domain.Plan
}

const (
	testBaseURL = "https://walls.test"
	ownerID     = "user-alice"
	bobID       = "user-bob"
	carolID     = "user-carol"
	adminID     = "user-admin"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:    quartz.NewMock(t),
		drafts:   NewMockDraftRepository(),
		plans:    NewMockPlanRepository(),
		users:    NewMockUserRepository(),
		upgrades: NewMockUpgradeRepository(),
		images:   NewMockImageRepository(),
		storage:  NewMockStorageService(),
		bcast:    &MockBroadcaster{},
		logger:   NewMockLogger(),
		registry: prometheus.NewRegistry(),
	}
	env.clock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	m := metrics.New(env.registry)

	env.resolver = NewAccessResolver(env.clock)
	env.quota = NewQuotaService(env.plans, env.users, env.drafts, env.images, 1, m, env.logger)
	env.share = NewShareService(env.drafts, env.users, env.resolver, env.clock, testBaseURL+"/", m, env.logger)
	env.planSvc = NewPlanService(env.plans, env.clock, env.logger)
	env.upgrade = NewUpgradeService(env.upgrades, env.users, env.plans, env.clock, m, env.logger)
	env.draftSvc = NewDraftService(env.drafts, env.images, env.quota, env.resolver, env.storage, env.bcast, env.clock, env.logger)
	env.userSvc = NewUserService(env.users, env.plans, env.quota, env.clock, env.logger)

	ctx := context.Background()
	var err error
	env.free, err = env.planSvc.CreatePlan(ctx, domain.PlanInput{
		Name:      "Free",
		Limits:    domain.PlanLimits{DesignsPerMonth: 3, ImageUploadsPerDesign: 2},
		Decors:    []string{"brick", "wood"},
		IsDefault: true,
	})
	if err != nil {
		t.Fatalf("create free plan: %v", err)
	}
	env.pro, err = env.planSvc.CreatePlan(ctx, domain.PlanInput{
		Name:         "Pro",
		Limits:       domain.PlanLimits{DesignsPerMonth: domain.Unlimited, ImageUploadsPerDesign: domain.Unlimited},
		ExportDrafts: true,
	})
	if err != nil {
		t.Fatalf("create pro plan: %v", err)
	}

	env.addUser(t, ownerID, "alice@example.com", env.free.ID, domain.UserTypeRegular)
	env.addUser(t, bobID, "bob@example.com", env.free.ID, domain.UserTypeRegular)
	env.addUser(t, carolID, "carol@example.com", env.free.ID, domain.UserTypeRegular)
	env.addUser(t, adminID, "admin@example.com", env.free.ID, domain.UserTypeAdmin)
	return env
}

func (e *testEnv) addUser(t *testing.T, id, email, planID string, userType domain.UserType) {
	t.Helper()
	now := e.clock.Now()
	err := e.users.Create(context.Background(), &domain.User{
		ID:        id,
		Email:     email,
		Name:      strings.Split(email, "@")[0],
		PlanID:    planID,
		UserType:  userType,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

// newDraft stores a private draft for owner and returns its ID.
func (e *testEnv) newDraft(t *testing.T, owner string) string {
	t.Helper()
	now := e.clock.Now()
	id := fmt.Sprintf("draft-%d", now.UnixNano())
	e.clock.Advance(time.Millisecond)
	err := e.drafts.Create(context.Background(), &domain.Draft{
		ID:             id,
		UserID:         owner,
		Name:           "Living room",
		WallData:       json.RawMessage(`{"tiles":[]}`),
		LinkPermission: domain.LinkPermissionView,
		SharedWith:     []string{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return id
}

func (e *testEnv) draft(t *testing.T, id string) *domain.Draft {
	t.Helper()
	d, err := e.drafts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get draft %s: %v", id, err)
	}
	return d
}
