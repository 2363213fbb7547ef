package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperengineering/fieldops/internal/notify"
	"github.com/hyperengineering/fieldops/internal/reports"
	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/worker"
)

const (
	testAPIKey     = "test-secret-key-12345"
	testCronSecret = "test-cron-secret-67890"
)

// stubUploader hands out deterministic upload URLs. Objects exist once
// put is called for their key.
type stubUploader struct {
	stored map[string]bool
}

func newStubUploader() *stubUploader {
	return &stubUploader{stored: make(map[string]bool)}
}

func (u *stubUploader) PresignedUploadURL(ctx context.Context, key string) (string, time.Time, error) {
	return "https://s3.test/reports/" + key, time.Now().Add(15 * time.Minute), nil
}

func (u *stubUploader) ObjectExists(ctx context.Context, key string) (bool, error) {
	return u.stored[key], nil
}

// put simulates the client PUT against an issued URL.
func (u *stubUploader) put(key string) { u.stored[key] = true }

// stubContractScanner returns a fixed result.
type stubContractScanner struct {
	res   worker.ContractScanResult
	err   error
	calls int
}

func (s *stubContractScanner) ScanAll(ctx context.Context, now time.Time) (worker.ContractScanResult, error) {
	s.calls++
	return s.res, s.err
}

// testEnv is a router over an in-memory store with one organization and
// a user per role.
type testEnv struct {
	t       *testing.T
	store   *store.SQLiteStore
	router  http.Handler
	org     string
	manager string
	office  string
	tech    string
	other   string
	uploads *stubUploader
}

type envOption func(*envConfig)

type envConfig struct {
	contracts ContractScanner
	uploader  reports.Uploader
}

func withContractScanner(c ContractScanner) envOption {
	return func(cfg *envConfig) { cfg.contracts = c }
}

func withUploader(u reports.Uploader) envOption {
	return func(cfg *envConfig) { cfg.uploader = u }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	org, err := s.CreateOrganization(ctx, "Acme Mechanical")
	if err != nil {
		t.Fatal(err)
	}
	otherOrg, err := s.CreateOrganization(ctx, "Other Co")
	if err != nil {
		t.Fatal(err)
	}

	user := func(orgID, name string, role types.UserRole) string {
		u, err := s.CreateUser(ctx, types.User{OrganizationID: orgID, Name: name, Email: name + "@example.com", Role: role})
		if err != nil {
			t.Fatal(err)
		}
		return u.ID
	}

	notifier := notify.NewStoreNotifier(s)
	uploads := newStubUploader()
	cfg := envConfig{
		contracts: worker.NewContractScanner(s, notifier, worker.DefaultNotifyCooldown),
		uploader:  uploads,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := NewHandler(s, cfg.contracts, worker.NewJobOverdueScanner(s, notifier), cfg.uploader, testAPIKey, testCronSecret, "1.2.3")

	return &testEnv{
		t:       t,
		store:   s,
		router:  NewRouter(h),
		org:     org.ID,
		manager: user(org.ID, "morgan", types.RoleManager),
		office:  user(org.ID, "olive", types.RoleOffice),
		tech:    user(org.ID, "tay", types.RoleTechnician),
		other:   user(otherOrg.ID, "ozzy", types.RoleManager),
		uploads: uploads,
	}
}

// do sends an authenticated request as userID. An empty userID omits the header.
func (e *testEnv) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

func ptr[T any](v T) *T { return &v }

func (e *testEnv) createContract(req types.CreateContractRequest) types.Contract {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/contracts", e.manager, req)
	expectStatus(e.t, w, http.StatusCreated)
	return decode[types.Contract](e.t, w)
}

func (e *testEnv) createJob(req types.CreateJobRequest) types.Job {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/jobs", e.manager, req)
	expectStatus(e.t, w, http.StatusCreated)
	return decode[types.Job](e.t, w)
}

// uploadReport issues an upload slot for the unit, stores the object and
// confirms it.
func (e *testEnv) uploadReport(jobID, unitID string) {
	e.t.Helper()
	base := "/api/jobs/" + jobID + "/units/" + unitID + "/reports"
	w := e.do(http.MethodPost, base, e.tech, nil)
	expectStatus(e.t, w, http.StatusCreated)
	up := decode[reports.Upload](e.t, w)
	e.uploads.put(up.Key)
	expectStatus(e.t, e.do(http.MethodPost, base+"/confirm", e.tech, types.ConfirmReportRequest{Key: up.Key}), http.StatusOK)
}

// checklistResponse mirrors checklist.Result on the wire.
type checklistResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Checklist struct {
		JobStatus types.JobStatus           `json:"job_status"`
		Gates     types.ChecklistGateValues `json:"gates"`
		Complete  bool                      `json:"complete"`
	} `json:"checklist"`
}

func noopUploader() reports.Uploader { return &reports.NoopUploader{} }
