package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/services"
)

const facility = "Sukuta Health Centre"

type RouterSuite struct {
	suite.Suite
	ctx    context.Context
	local  *repositories.Store
	remote *repositories.Store
	signal *services.Signal
	auth   *services.AuthService
	server *httptest.Server
	admin  string
	nurse  string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []services.Option{services.WithLogger(logger), services.WithHashCost(bcrypt.MinCost)}

	catalog := schedule.Default()
	engine := schedule.NewEngine(catalog)
	s.local = repositories.NewStore(repositories.NewMemoryKVStore(), nil)
	s.remote = repositories.NewStore(repositories.NewMemoryKVStore(), nil)
	s.signal = services.NewSignal(true)

	s.auth = services.NewAuthService(s.local, repositories.NewMemorySessionRepository(nil), catalog, "secret", time.Hour, opts...)
	router := NewRouter(RouterConfig{
		Catalog:      catalog,
		Auth:         s.auth,
		Children:     services.NewChildService(s.local, engine, opts...),
		Vaccinations: services.NewVaccinationService(s.local, engine, opts...),
		Sync:         services.NewSyncService(s.local, s.remote, s.signal, opts...),
		Metrics:      http.NotFoundHandler(),
		Logger:       logger,
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)

	_, err := s.auth.EnsureAdmin(s.ctx, "admin@health.gm", "admin-password", facility)
	s.Require().NoError(err)
	s.admin = s.login("admin@health.gm", "admin-password")

	var nurse models.User
	s.do(http.MethodPost, "/api/auth/register", "", services.RegisterRequest{
		Email:    "nurse@health.gm",
		Password: "nurse-password",
		FullName: "Fatou Bojang",
		Facility: facility,
	}, http.StatusCreated, &nurse)
	s.do(http.MethodPost, "/api/users/"+nurse.ID+"/approve", s.admin, nil, http.StatusOK, nil)
	s.nurse = s.login("nurse@health.gm", "nurse-password")
}

func (s *RouterSuite) login(email, password string) string {
	var resp services.LoginResponse
	s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: email, Password: password}, http.StatusOK, &resp)
	return resp.Token
}

// do sends body as JSON, asserts the status and decodes the response into
// out when out is non-nil.
func (s *RouterSuite) do(method, path, token string, body any, wantStatus int, out any) {
	s.T().Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Equal(wantStatus, resp.StatusCode, "%s %s: %s", method, path, raw)
	if out != nil {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
}

func (s *RouterSuite) registerChild() models.Child {
	var child models.Child
	s.do(http.MethodPost, "/api/children", s.nurse, services.ChildInput{
		FullName:      "awa ceesay",
		MotherName:    "Isatou Ceesay",
		ParentContact: "7701234",
		MCNumber:      "2024-0012",
		DateOfBirth:   models.MustParseDate("2024-01-01"),
		Gender:        models.GenderFemale,
	}, http.StatusCreated, &child)
	return child
}

func (s *RouterSuite) TestHealthAndSchedulePublic() {
	var health map[string]string
	s.do(http.MethodGet, "/health", "", nil, http.StatusOK, &health)
	s.Equal("idle", health["sync_state"])

	var sched ScheduleResponse
	s.do(http.MethodGet, "/api/schedule", "", nil, http.StatusOK, &sched)
	s.Equal(22, sched.Total)
	s.Equal("birth", sched.Groups[0].ID)
}

func (s *RouterSuite) TestAuthRequired() {
	s.do(http.MethodGet, "/api/children", "", nil, http.StatusUnauthorized, nil)
	s.do(http.MethodGet, "/api/children", "not-a-token", nil, http.StatusUnauthorized, nil)
	s.do(http.MethodGet, "/api/users", s.nurse, nil, http.StatusForbidden, nil)
	s.do(http.MethodGet, "/api/users", s.admin, nil, http.StatusOK, nil)
}

func (s *RouterSuite) TestPendingUserCannotLogin() {
	s.do(http.MethodPost, "/api/auth/register", "", services.RegisterRequest{
		Email:    "new@health.gm",
		Password: "new-password",
		FullName: "Musa Touray",
		Facility: facility,
	}, http.StatusCreated, nil)

	var errResp ErrorResponse
	s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "new@health.gm", Password: "new-password"}, http.StatusForbidden, &errResp)
	s.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "new@health.gm", Password: "wrong-password"}, http.StatusUnauthorized, nil)
}

func (s *RouterSuite) TestChildLifecycle() {
	child := s.registerChild()
	s.Equal("Awa Ceesay", child.FullName)
	s.Equal(facility, child.Facility, "defaults to the worker's facility")

	var result services.AdministrationResult
	s.do(http.MethodPost, "/api/children/"+child.ID+"/vaccinations", s.nurse, services.AdministrationRequest{
		VaccineIDs:       []string{"bcg", "hepb"},
		DateAdministered: models.MustParseDate("2024-01-02"),
		AdministeredBy:   "Lamin Sanneh",
	}, http.StatusCreated, &result)
	s.Len(result.Records, 2)

	var summary services.ChildSummary
	s.do(http.MethodGet, "/api/children/"+child.ID, s.nurse, nil, http.StatusOK, &summary)
	s.Len(summary.Records, 2)

	var names []string
	s.do(http.MethodGet, "/api/vaccinators", s.nurse, nil, http.StatusOK, &names)
	s.Equal([]string{"Lamin Sanneh"}, names)

	var list []models.Child
	s.do(http.MethodGet, "/api/children?q=ceesay", s.nurse, nil, http.StatusOK, &list)
	s.Len(list, 1)

	s.do(http.MethodDelete, "/api/children/"+child.ID, s.nurse, nil, http.StatusUnprocessableEntity, nil)
	s.do(http.MethodDelete, "/api/children/"+child.ID+"?reason=duplicate", s.nurse, nil, http.StatusNoContent, nil)
	s.do(http.MethodGet, "/api/children/"+child.ID, s.nurse, nil, http.StatusNotFound, nil)
}

func (s *RouterSuite) TestValidationErrorIs422WithKind() {
	child := s.registerChild()

	var errResp ErrorResponse
	s.do(http.MethodPost, "/api/children/"+child.ID+"/vaccinations", s.nurse, services.AdministrationRequest{
		VaccineIDs:       []string{"penta1"},
		DateAdministered: models.MustParseDate("2024-02-25"),
		UnknownProvider:  true,
	}, http.StatusUnprocessableEntity, &errResp)

	s.Equal("validation_failed", errResp.Error)
	s.Equal("too_young", errResp.Kind)
	s.Equal(8, errResp.RequiredWeeks)
}

func (s *RouterSuite) TestInvalidChildInput() {
	var errResp ErrorResponse
	s.do(http.MethodPost, "/api/children", s.nurse, services.ChildInput{
		FullName:      "Awa",
		MotherName:    "Isatou Ceesay",
		ParentContact: "7701234",
		MCNumber:      "2024-0012",
		DateOfBirth:   models.MustParseDate("2024-01-01"),
		Gender:        models.GenderFemale,
	}, http.StatusUnprocessableEntity, &errResp)
	s.Equal("full_name", errResp.Field)
}

func (s *RouterSuite) TestReports() {
	s.registerChild()

	var defaulters []services.Defaulter
	s.do(http.MethodGet, "/api/defaulters", s.nurse, nil, http.StatusOK, &defaulters)
	s.Len(defaulters, 1)

	var stats services.FacilityStats
	s.do(http.MethodGet, "/api/stats?facility=all", s.nurse, nil, http.StatusOK, &stats)
	s.Equal(1, stats.TotalChildren)

	var coverage []services.VaccineCoverage
	s.do(http.MethodGet, "/api/coverage", s.nurse, nil, http.StatusOK, &coverage)
	s.Len(coverage, 22)
}

func (s *RouterSuite) TestSync() {
	child := s.registerChild()

	var status SyncStatusResponse
	s.do(http.MethodGet, "/api/sync", s.nurse, nil, http.StatusOK, &status)
	s.Equal(services.SyncIdle, status.State)
	s.Nil(status.LastSync)

	var result services.SyncResult
	s.do(http.MethodPost, "/api/sync", s.nurse, nil, http.StatusOK, &result)
	s.Equal(1, result.Children.LocalAdded)

	_, err := s.remote.Children.GetByID(s.ctx, child.ID)
	s.NoError(err)

	s.do(http.MethodGet, "/api/sync", s.nurse, nil, http.StatusOK, &status)
	s.NotNil(status.LastSync)

	s.signal.Set(false)
	var errResp ErrorResponse
	s.do(http.MethodPost, "/api/sync", s.nurse, nil, http.StatusServiceUnavailable, &errResp)
	s.Equal("offline", errResp.Error)
}

func (s *RouterSuite) TestLogout() {
	s.do(http.MethodPost, "/api/auth/logout", s.nurse, nil, http.StatusNoContent, nil)
	s.do(http.MethodGet, "/api/children", s.nurse, nil, http.StatusUnauthorized, nil)
}

func (s *RouterSuite) TestLogoutAllEndsEverySessionOfTheUser() {
	second := s.login("nurse@health.gm", "nurse-password")

	s.do(http.MethodPost, "/api/auth/logout-all", s.nurse, nil, http.StatusNoContent, nil)
	s.do(http.MethodGet, "/api/children", s.nurse, nil, http.StatusUnauthorized, nil)
	s.do(http.MethodGet, "/api/children", second, nil, http.StatusUnauthorized, nil)
	s.do(http.MethodGet, "/api/children", s.admin, nil, http.StatusOK, nil)
}

func TestRespondError_StoreUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	err := &repositories.StoreError{Op: "get", Collection: "children", Err: io.ErrUnexpectedEOF}

	respondError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), err)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "store_unavailable", body.Error)
}

func TestRespondError_SyncInProgress(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, slog.Default(), services.ErrSyncInProgress)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRespondError_SyncCanceledIsNotAStoreFault(t *testing.T) {
	var logs bytes.Buffer
	rec := httptest.NewRecorder()
	err := fmt.Errorf("%w: %w", services.ErrSyncCanceled, context.Canceled)

	respondError(rec, slog.New(slog.NewTextHandler(&logs, nil)), err)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "sync_canceled", body.Error)
	assert.Empty(t, logs.String())
}
