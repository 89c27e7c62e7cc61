package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/contactkit/importer/internal/domain"
	"github.com/contactkit/importer/internal/repository"

	"github.com/google/uuid"
)

type stubJobRepo struct {
	mu           sync.Mutex
	jobs         map[uuid.UUID]domain.ImportJob
	history      []domain.ImportJob
	checks       int
	cancelAt     int // cancel flag turns on at the Nth batch-boundary check
	updates      int
	failUpdateAt int  // the Nth Update call returns an error
	failCreate   bool // Create returns an error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[uuid.UUID]domain.ImportJob)}
}

func (r *stubJobRepo) Create(_ context.Context, job domain.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errors.New("job store unavailable")
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *stubJobRepo) Update(_ context.Context, job domain.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.failUpdateAt > 0 && r.updates == r.failUpdateAt {
		return errors.New("job store unavailable")
	}
	r.jobs[job.ID] = job
	r.history = append(r.history, job)
	return nil
}

func (r *stubJobRepo) GetByID(_ context.Context, id uuid.UUID) (domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ImportJob{}, errors.New("not found")
	}
	return job, nil
}

func (r *stubJobRepo) ListRecent(_ context.Context, userID string, limit int) ([]domain.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []domain.ImportJob
	for _, job := range r.jobs {
		if userID == "" || job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (r *stubJobRepo) RequestCancel(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.CancelRequested = true
	r.jobs[id] = job
	return true, nil
}

func (r *stubJobRepo) CancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if ok && job.CancelRequested {
		return true, nil
	}
	// Count only batch-boundary polls; the pre-start poll happens while the
	// job is still PENDING.
	if r.cancelAt > 0 && ok && job.Status == domain.JobStatusProcessing {
		r.checks++
		if r.checks >= r.cancelAt {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubJobRepo) final(id uuid.UUID) domain.ImportJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

func (r *stubJobRepo) snapshots() []domain.ImportJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ImportJob, len(r.history))
	copy(out, r.history)
	return out
}

type stubContactRepo struct {
	mu        sync.Mutex
	existing  map[string]bool
	batches   [][]domain.Contact
	failCalls map[int]bool // 1-based CreateBatch call numbers that fail
	calls     int
}

func newStubContactRepo() *stubContactRepo {
	return &stubContactRepo{existing: make(map[string]bool), failCalls: make(map[int]bool)}
}

func (r *stubContactRepo) CreateBatch(_ context.Context, contacts []domain.Contact) (repository.BatchWriteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failCalls[r.calls] {
		return repository.BatchWriteResult{}, errors.New("storage unavailable")
	}

	result := repository.BatchWriteResult{}
	accepted := make([]domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		email := c.NormalizedEmail()
		if r.existing[email] {
			result.ConflictEmails = append(result.ConflictEmails, email)
			continue
		}
		r.existing[email] = true
		accepted = append(accepted, c)
		result.Inserted++
	}
	r.batches = append(r.batches, accepted)
	return result, nil
}

func (r *stubContactRepo) FindExistingEmails(_ context.Context, emails []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make(map[string]bool)
	for _, email := range emails {
		if r.existing[strings.ToLower(email)] {
			found[strings.ToLower(email)] = true
		}
	}
	return found, nil
}

func (r *stubContactRepo) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubErrorRepo struct {
	mu      sync.Mutex
	entries []domain.ImportError
}

func (r *stubErrorRepo) RecordBatch(_ context.Context, entries []domain.ImportError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *stubErrorRepo) List(_ context.Context, jobID uuid.UUID, category domain.ErrorCategory, rowNumber *int, limit, offset int) ([]domain.ImportError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ImportError
	for _, e := range r.entries {
		if e.JobID != jobID {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		if rowNumber != nil && e.RowNumber != *rowNumber {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func newTestService(t *testing.T, jobs *stubJobRepo, contacts *stubContactRepo, errLog *stubErrorRepo, batchSize int) *Service {
	t.Helper()
	return NewService(jobs, contacts, errLog, Options{
		BatchSize:         batchSize,
		MaxConcurrentJobs: 2,
		SpoolDir:          t.TempDir(),
	})
}

func runToCompletion(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close(ctx)
}

func TestEndToEndImportScenario(t *testing.T) {
	jobs := newStubJobRepo()
	contacts := newStubContactRepo()
	errLog := &stubErrorRepo{}
	service := newTestService(t, jobs, contacts, errLog, 10)

	data := strings.Join([]string{
		"Email,First Name",
		"alice@x.com,Alice",
		"bob@x.com,Bob",
		"bob@x.com,Bobby",
		",NoEmail",
		"carol@x.com,Carol",
	}, "\n") + "\n"

	job, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("submitted job status = %s, want PENDING", job.Status)
	}
	runToCompletion(t, service)

	final := jobs.final(job.ID)
	if final.Status != domain.JobStatusCompleted {
		t.Fatalf("final status = %s, want COMPLETED", final.Status)
	}
	if final.TotalRows != 5 || final.ProcessedRows != 5 {
		t.Fatalf("rows: total=%d processed=%d, want 5/5", final.TotalRows, final.ProcessedRows)
	}
	if final.SuccessCount != 3 || final.DuplicateCount != 1 || final.ErrorCount != 1 {
		t.Fatalf("counts: success=%d dup=%d err=%d, want 3/1/1",
			final.SuccessCount, final.DuplicateCount, final.ErrorCount)
	}
	if final.CompletedAt == nil {
		t.Fatalf("completed job must have completed_at set")
	}
	if final.TotalBatches != 1 || final.CurrentBatch != 1 {
		t.Fatalf("batches: current=%d total=%d, want 1/1", final.CurrentBatch, final.TotalBatches)
	}

	dupEntries, _ := errLog.List(context.Background(), job.ID, domain.ErrorCategoryDuplicate, nil, 0, 0)
	if len(dupEntries) != 1 || dupEntries[0].RawValue != "bob@x.com" {
		t.Fatalf("unexpected duplicate entries: %+v", dupEntries)
	}
	valEntries, _ := errLog.List(context.Background(), job.ID, domain.ErrorCategoryValidation, nil, 0, 0)
	if len(valEntries) != 1 || valEntries[0].RowNumber != 5 {
		t.Fatalf("unexpected validation entries: %+v", valEntries)
	}
}

func TestCountsInvariantHoldsAfterEveryBatch(t *testing.T) {
	jobs := newStubJobRepo()
	contacts := newStubContactRepo()
	service := newTestService(t, jobs, contacts, &stubErrorRepo{}, 7)

	var sb strings.Builder
	sb.WriteString("Email,First Name\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,User\n", i)
	}

	job, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(sb.String()),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	runToCompletion(t, service)

	prev := 0
	for _, snap := range jobs.snapshots() {
		if snap.SuccessCount+snap.ErrorCount+snap.DuplicateCount != snap.ProcessedRows {
			t.Fatalf("invariant broken: %d+%d+%d != %d",
				snap.SuccessCount, snap.ErrorCount, snap.DuplicateCount, snap.ProcessedRows)
		}
		if snap.ProcessedRows < prev {
			t.Fatalf("processed_rows regressed: %d -> %d", prev, snap.ProcessedRows)
		}
		if snap.ProcessedRows > snap.TotalRows {
			t.Fatalf("processed_rows %d exceeds total_rows %d", snap.ProcessedRows, snap.TotalRows)
		}
		if pct := snap.ProgressPercentage(); pct < 0 || pct > 100 {
			t.Fatalf("progress percentage out of range: %f", pct)
		}
		prev = snap.ProcessedRows
	}

	final := jobs.final(job.ID)
	if final.SuccessCount != 40 || final.ProcessedRows != 40 {
		t.Fatalf("final counts: success=%d processed=%d, want 40/40", final.SuccessCount, final.ProcessedRows)
	}
	if final.TotalBatches != 6 {
		t.Fatalf("total batches = %d, want ceil(40/7)=6", final.TotalBatches)
	}
}

func TestCancellationStopsAtBatchBoundary(t *testing.T) {
	jobs := newStubJobRepo()
	jobs.cancelAt = 3
	contacts := newStubContactRepo()
	service := newTestService(t, jobs, contacts, &stubErrorRepo{}, 10)

	var sb strings.Builder
	sb.WriteString("Email,First Name\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,User\n", i)
	}

	job, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(sb.String()),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	runToCompletion(t, service)

	final := jobs.final(job.ID)
	if final.Status != domain.JobStatusCancelled {
		t.Fatalf("final status = %s, want CANCELLED", final.Status)
	}
	if final.ProcessedRows != 30 || final.SuccessCount != 30 {
		t.Fatalf("processed=%d success=%d, want 30/30 (batches 1-3 only)", final.ProcessedRows, final.SuccessCount)
	}
	if got := contacts.batchCount(); got != 3 {
		t.Fatalf("store saw %d batch writes, want 3; later batches must never be attempted", got)
	}
	if final.CompletedAt == nil {
		t.Fatalf("cancelled job must have completed_at set")
	}
}

func TestBatchWriteFailureCountsWholeBatch(t *testing.T) {
	jobs := newStubJobRepo()
	contacts := newStubContactRepo()
	contacts.failCalls[2] = true
	errLog := &stubErrorRepo{}
	service := newTestService(t, jobs, contacts, errLog, 10)

	var sb strings.Builder
	sb.WriteString("Email,First Name\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,User\n", i)
	}

	job, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(sb.String()),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	runToCompletion(t, service)

	final := jobs.final(job.ID)
	if final.Status != domain.JobStatusCompleted {
		t.Fatalf("final status = %s, want COMPLETED; a batch failure must not abort the job", final.Status)
	}
	if final.SuccessCount != 20 || final.ErrorCount != 10 {
		t.Fatalf("success=%d err=%d, want 20/10", final.SuccessCount, final.ErrorCount)
	}

	storageEntries, _ := errLog.List(context.Background(), job.ID, domain.ErrorCategoryStorage, nil, 0, 0)
	if len(storageEntries) != 1 {
		t.Fatalf("batch failure should be logged once, got %d entries", len(storageEntries))
	}
}

func TestJobStoreFailureMovesJobToFailed(t *testing.T) {
	jobs := newStubJobRepo()
	// Update 1 is the PROCESSING transition, 2 follows batch 1, 3 follows
	// batch 2 and blows up mid-run.
	jobs.failUpdateAt = 3
	contacts := newStubContactRepo()
	errLog := &stubErrorRepo{}
	service := newTestService(t, jobs, contacts, errLog, 10)

	var sb strings.Builder
	sb.WriteString("Email,First Name\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,User\n", i)
	}

	job, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(sb.String()),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	runToCompletion(t, service)

	final := jobs.final(job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("final status = %s, want FAILED", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatalf("failed job must have completed_at set")
	}
	// Batches committed before the failure stay committed.
	if final.SuccessCount != 20 {
		t.Fatalf("success = %d, want 20 (batches 1-2 retained)", final.SuccessCount)
	}
	if got := contacts.batchCount(); got != 2 {
		t.Fatalf("store saw %d batch writes, want 2; no batch after the failure", got)
	}

	storageEntries, _ := errLog.List(context.Background(), job.ID, domain.ErrorCategoryStorage, nil, 0, 0)
	if len(storageEntries) != 1 || !strings.Contains(storageEntries[0].Message, "job store unavailable") {
		t.Fatalf("failure cause should be logged once as a storage entry, got %+v", storageEntries)
	}
}

func TestDuplicateAgainstStoredContacts(t *testing.T) {
	jobs := newStubJobRepo()
	contacts := newStubContactRepo()
	contacts.existing["bob@x.com"] = true
	service := newTestService(t, jobs, contacts, &stubErrorRepo{}, 10)

	data := "Email,First Name\nalice@x.com,Alice\nbob@x.com,Bob\n"
	job, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	runToCompletion(t, service)

	final := jobs.final(job.ID)
	if final.SuccessCount != 1 || final.DuplicateCount != 1 {
		t.Fatalf("success=%d dup=%d, want 1/1", final.SuccessCount, final.DuplicateCount)
	}
}

func TestSubmitRejectsConflictingMapping(t *testing.T) {
	service := newTestService(t, newStubJobRepo(), newStubContactRepo(), &stubErrorRepo{}, 10)

	_, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Mapping: domain.ColumnMapping{
			"Email":        "email",
			"Backup Email": "email",
		},
		Data: strings.NewReader("Email,Backup Email\na@x.com,b@x.com\n"),
	})
	if !errors.Is(err, ErrMappingConflict) {
		t.Fatalf("expected ErrMappingConflict, got %v", err)
	}
}

func TestSubmitRejectsUnknownMappingTarget(t *testing.T) {
	service := newTestService(t, newStubJobRepo(), newStubContactRepo(), &stubErrorRepo{}, 10)

	_, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Mapping:  domain.ColumnMapping{"Email": "electronic_mail"},
		Data:     strings.NewReader("Email\na@x.com\n"),
	})
	if err == nil || !strings.Contains(err.Error(), "unknown canonical fields") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestSubmitRejectsEmptyFile(t *testing.T) {
	service := newTestService(t, newStubJobRepo(), newStubContactRepo(), &stubErrorRepo{}, 10)

	_, err := service.Submit(context.Background(), SubmitRequest{
		UserID:   "user-1",
		Filename: "contacts.csv",
		Data:     strings.NewReader(""),
	})
	if err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestStatusIncludesDerivedFields(t *testing.T) {
	jobs := newStubJobRepo()
	service := newTestService(t, jobs, newStubContactRepo(), &stubErrorRepo{}, 10)

	job := domain.NewImportJob("user-1", "contacts.csv", 100, nil)
	job.Status = domain.JobStatusProcessing
	job.TotalRows = 200
	job.ProcessedRows = 50
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	view, err := service.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status returned error: %v", err)
	}
	if view.ProgressPercentage != 25 {
		t.Fatalf("progress = %f, want 25", view.ProgressPercentage)
	}
	if view.RemainingRows != 150 {
		t.Fatalf("remaining = %d, want 150", view.RemainingRows)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	service := newTestService(t, newStubJobRepo(), newStubContactRepo(), &stubErrorRepo{}, 10)
	if _, err := service.Status(context.Background(), uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	jobs := newStubJobRepo()
	service := newTestService(t, jobs, newStubContactRepo(), &stubErrorRepo{}, 10)

	job := domain.NewImportJob("user-1", "contacts.csv", 10, nil)
	job.Status = domain.JobStatusCompleted
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	accepted, err := service.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if accepted {
		t.Fatalf("cancelling a terminal job must be a no-op")
	}
}
