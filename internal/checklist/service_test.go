package checklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/fieldops/internal/store"
	"github.com/hyperengineering/fieldops/internal/types"
)

// fakeStore keeps one organization's jobs and checklists in memory.
type fakeStore struct {
	jobs       map[string]*types.Job
	checklists map[string]*types.CompletionChecklist
	saves      int
	saveErr    error
}

func newFakeStore(jobs ...*types.Job) *fakeStore {
	fs := &fakeStore{
		jobs:       make(map[string]*types.Job),
		checklists: make(map[string]*types.CompletionChecklist),
	}
	for _, j := range jobs {
		fs.jobs[j.ID] = j
	}
	return fs
}

func (f *fakeStore) GetJob(ctx context.Context, org, id string) (*types.Job, error) {
	j, ok := f.jobs[id]
	if !ok || j.OrganizationID != org {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) GetChecklist(ctx context.Context, jobID string) (*types.CompletionChecklist, error) {
	c, ok := f.checklists[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) SaveChecklist(ctx context.Context, org string, c *types.CompletionChecklist, change *types.JobCompletionChange) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	cp := *c
	f.checklists[c.JobID] = &cp
	if change != nil {
		j := f.jobs[c.JobID]
		j.Status = change.Status
		j.CompletedAt = change.CompletedAt
		j.CompletedBy = change.CompletedBy
	}
	return nil
}

func newJob(status types.JobStatus, billing types.BillingStatus, units ...types.JobUnit) *types.Job {
	return &types.Job{
		ID:             "job-1",
		OrganizationID: "org-1",
		JobNumber:      "JOB-0001",
		Status:         status,
		BillingStatus:  billing,
		Units:          units,
	}
}

func newTestService(fs *fakeStore) *Service {
	svc := NewService(fs)
	svc.now = func() time.Time { return at }
	return svc
}

func TestService_ToggleAllGatesCompletesThenRestores(t *testing.T) {
	// Given a confirmed job whose derived gates already hold
	job := newJob(types.JobConfirmed, types.BillingPaid)
	fs := newFakeStore(job)
	svc := newTestService(fs)
	ctx := context.Background()

	// When the three manual gates are checked
	for _, gate := range []string{types.GateSentToCustomer, types.GateSavedInFile, types.GatePartsLogisticsDone} {
		res := svc.Toggle(ctx, "org-1", "job-1", gate, true, "mgr-1")
		if !res.Success {
			t.Fatalf("Toggle(%s) failed: %s", gate, res.Error)
		}
	}

	// Then the job is completed with its prior status recorded
	if job.Status != types.JobCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
	if job.CompletedAt == nil || job.CompletedBy == nil || *job.CompletedBy != "mgr-1" {
		t.Errorf("completion stamps missing: %+v", job)
	}
	stored := fs.checklists["job-1"]
	if stored.PreviousStatus == nil || *stored.PreviousStatus != types.JobConfirmed {
		t.Errorf("previous status = %v, want confirmed", stored.PreviousStatus)
	}

	// When one gate is cleared
	res := svc.Toggle(ctx, "org-1", "job-1", types.GateSavedInFile, false, "mgr-1")
	if !res.Success {
		t.Fatalf("Toggle(false) failed: %s", res.Error)
	}

	// Then the job returns to confirmed and stamps are cleared
	if job.Status != types.JobConfirmed {
		t.Errorf("job status = %s, want confirmed", job.Status)
	}
	if job.CompletedAt != nil || job.CompletedBy != nil {
		t.Error("completion stamps must be cleared")
	}
	if res.Checklist.Complete || res.Checklist.JobStatus != types.JobConfirmed {
		t.Errorf("view = %+v", res.Checklist)
	}
	if fs.checklists["job-1"].PreviousStatus != nil {
		t.Error("previous status must be cleared while incomplete")
	}
}

func TestService_ToggleRejectsDerivedGates(t *testing.T) {
	fs := newFakeStore(newJob(types.JobPending, types.BillingNotBilled))
	svc := newTestService(fs)

	for _, gate := range []string{types.GateReportsUploaded, types.GateInvoiced} {
		res := svc.Toggle(context.Background(), "org-1", "job-1", gate, true, "mgr-1")
		if res.Success || !errors.Is(res.Cause, ErrDerivedGate) {
			t.Errorf("Toggle(%s) = %+v, want ErrDerivedGate", gate, res)
		}
	}
	if fs.saves != 0 {
		t.Error("rejected toggles must not write")
	}
}

func TestService_ToggleUnknownGate(t *testing.T) {
	svc := newTestService(newFakeStore(newJob(types.JobPending, types.BillingNotBilled)))
	res := svc.Toggle(context.Background(), "org-1", "job-1", "photos_attached", true, "mgr-1")
	if res.Success || !errors.Is(res.Cause, ErrUnknownGate) {
		t.Errorf("expected ErrUnknownGate, got %+v", res)
	}
}

func TestService_ToggleMissingJob(t *testing.T) {
	svc := newTestService(newFakeStore())
	res := svc.Toggle(context.Background(), "org-1", "job-1", types.GateSentToCustomer, true, "mgr-1")
	if res.Success || !errors.Is(res.Cause, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %+v", res)
	}
}

func TestService_WriteFailureIsReported(t *testing.T) {
	job := newJob(types.JobPending, types.BillingNotBilled)
	fs := newFakeStore(job)
	fs.saveErr = errors.New("database is locked")
	svc := newTestService(fs)

	res := svc.Toggle(context.Background(), "org-1", "job-1", types.GateSentToCustomer, true, "mgr-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "database is locked" || res.Checklist != nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestService_SyncDerivesGates(t *testing.T) {
	// Given a job with a unit expecting no reports and paid billing
	job := newJob(types.JobPending, types.BillingPaid, types.JobUnit{ID: "u1", ExpectedReportCount: 0})
	fs := newFakeStore(job)
	svc := newTestService(fs)

	// When the checklist is read
	res := svc.Sync(context.Background(), "org-1", "job-1", "mgr-1")

	// Then both derived gates are set without a manual toggle
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Error)
	}
	if !res.Checklist.Gates.ReportsUploaded || !res.Checklist.Gates.Invoiced {
		t.Errorf("derived gates not set: %+v", res.Checklist.Gates)
	}
	if fs.saves != 1 {
		t.Errorf("saves = %d, want 1", fs.saves)
	}

	// And a second read writes nothing
	svc.Sync(context.Background(), "org-1", "job-1", "mgr-1")
	if fs.saves != 1 {
		t.Errorf("unchanged gates must not be written, saves = %d", fs.saves)
	}
}

func TestService_SyncClearsStaleDerivedGate(t *testing.T) {
	job := newJob(types.JobPending, types.BillingNotBilled, types.JobUnit{ID: "u1", ExpectedReportCount: 2, UploadedReportCount: 1})
	fs := newFakeStore(job)
	fs.checklists["job-1"] = &types.CompletionChecklist{
		JobID: "job-1",
		Gates: types.ChecklistGateValues{ReportsUploaded: true, Invoiced: true},
	}
	svc := newTestService(fs)

	res := svc.Sync(context.Background(), "org-1", "job-1", "mgr-1")
	if !res.Success {
		t.Fatal(res.Error)
	}
	if res.Checklist.Gates.ReportsUploaded || res.Checklist.Gates.Invoiced {
		t.Errorf("stale derived gates must be cleared: %+v", res.Checklist.Gates)
	}
}

func TestService_SyncCompletesWhenDerivedGatesArriveLast(t *testing.T) {
	job := newJob(types.JobOverdue, types.BillingInvoiced)
	fs := newFakeStore(job)
	fs.checklists["job-1"] = &types.CompletionChecklist{
		JobID: "job-1",
		Gates: types.ChecklistGateValues{SentToCustomer: true, SavedInFile: true, PartsLogisticsDone: true},
	}
	svc := newTestService(fs)

	res := svc.Sync(context.Background(), "org-1", "job-1", "mgr-1")
	if !res.Success {
		t.Fatal(res.Error)
	}
	if job.Status != types.JobCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	if p := fs.checklists["job-1"].PreviousStatus; p == nil || *p != types.JobOverdue {
		t.Errorf("previous status = %v, want overdue", p)
	}
}
