package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/contactkit/importer/internal/domain"
	"github.com/contactkit/importer/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrMappingConflict is returned when a submitted column mapping assigns
	// the same canonical field to more than one source column.
	ErrMappingConflict = errors.New("column mapping has conflicts")

	// ErrJobNotFound is returned for status or cancel requests against an
	// unknown job identifier.
	ErrJobNotFound = errors.New("import job not found")

	// ErrInvalidSubmission marks submission failures the caller can fix:
	// missing fields, empty or unreadable files, bad mappings. Anything not
	// wrapping it is a server fault.
	ErrInvalidSubmission = errors.New("invalid import submission")
)

// Options carries the pipeline sizing knobs.
type Options struct {
	BatchSize            int
	MaxConcurrentJobs    int
	StreamThresholdBytes int64
	// SpoolDir receives uploaded files while their job runs. Defaults to the
	// system temp directory.
	SpoolDir string
}

// Service is the import job orchestrator. It owns the full pipeline: column
// mapping, conversion, validation, deduplication, batching, bulk writes, and
// the durable job state machine. Each submitted job runs on its own
// goroutine; the orchestrator goroutine is the only writer of its job row.
type Service struct {
	jobs     repository.ImportJobRepository
	contacts repository.ContactRepository
	errLog   repository.ImportErrorRepository

	batchSize       int
	streamThreshold int64
	spoolDir        string

	sem     *semaphore.Weighted
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates the orchestrator with explicitly injected stores.
func NewService(
	jobs repository.ImportJobRepository,
	contacts repository.ContactRepository,
	errLog repository.ImportErrorRepository,
	opts Options,
) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 1
	}
	if opts.SpoolDir == "" {
		opts.SpoolDir = os.TempDir()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		jobs:            jobs,
		contacts:        contacts,
		errLog:          errLog,
		batchSize:       opts.BatchSize,
		streamThreshold: opts.StreamThresholdBytes,
		spoolDir:        opts.SpoolDir,
		sem:             semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		baseCtx:         ctx,
		cancel:          cancel,
	}
}

// SubmitRequest describes one import submission.
type SubmitRequest struct {
	UserID   string
	Filename string
	// Mapping maps raw source headers to canonical fields. Empty means
	// auto-detect from the header row.
	Mapping domain.ColumnMapping
	Data    io.Reader
}

// Submit validates the request, creates the durable PENDING job, and starts
// the background run. The returned job reflects the record as created.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.ImportJob, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ImportJob{}, fmt.Errorf("%w: user id is required", ErrInvalidSubmission)
	}
	if strings.TrimSpace(req.Filename) == "" {
		return domain.ImportJob{}, fmt.Errorf("%w: filename is required", ErrInvalidSubmission)
	}
	if req.Data == nil {
		return domain.ImportJob{}, fmt.Errorf("%w: data reader is required", ErrInvalidSubmission)
	}

	path, size, err := s.spool(req.Data)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if size == 0 {
		_ = os.Remove(path)
		return domain.ImportJob{}, fmt.Errorf("%w: file is empty", ErrInvalidSubmission)
	}

	mapping := req.Mapping
	if len(mapping) == 0 {
		headers, headerErr := readHeaders(path, req.Filename)
		if headerErr != nil {
			_ = os.Remove(path)
			return domain.ImportJob{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, headerErr)
		}
		mapping = AutoDetect(headers)
	} else {
		if conflicts := mapping.Conflicts(); len(conflicts) > 0 {
			_ = os.Remove(path)
			return domain.ImportJob{}, fmt.Errorf("%w: %w: %s", ErrInvalidSubmission, ErrMappingConflict, strings.Join(conflicts, "; "))
		}
		if unknown := mapping.UnknownTargets(); len(unknown) > 0 {
			_ = os.Remove(path)
			return domain.ImportJob{}, fmt.Errorf("%w: unknown canonical fields in mapping: %v", ErrInvalidSubmission, unknown)
		}
	}

	job := domain.NewImportJob(req.UserID, req.Filename, size, mapping)
	if err := s.jobs.Create(ctx, job); err != nil {
		_ = os.Remove(path)
		return domain.ImportJob{}, err
	}

	s.wg.Add(1)
	go s.runJob(job, path)

	slog.Info("import job submitted",
		"job", job.ID, "user", job.UserID, "file", job.Filename, "bytes", size)
	return job, nil
}

// spool copies the upload to a temp file so large inputs can be re-read by
// the streaming source without living in memory.
func (s *Service) spool(data io.Reader) (string, int64, error) {
	file, err := os.CreateTemp(s.spoolDir, "import-*.upload")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}

	size, err := io.Copy(file, data)
	closeErr := file.Close()
	if err != nil {
		_ = os.Remove(file.Name())
		return "", 0, fmt.Errorf("failed to spool upload: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(file.Name())
		return "", 0, fmt.Errorf("failed to close spool file: %w", closeErr)
	}

	return file.Name(), size, nil
}

func readHeaders(path, filename string) ([]string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		stream, err := openCSVStream(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = stream.Close() }()
		return stream.headers, nil
	}

	payload, err := readFile(path)
	if err != nil {
		return nil, err
	}
	table, err := ParseTable(filename, payload)
	if err != nil {
		return nil, err
	}
	return table.Headers, nil
}

// runJob drives one import job from PENDING to a terminal state.
func (s *Service) runJob(job domain.ImportJob, path string) {
	defer s.wg.Done()
	defer func() { _ = os.Remove(path) }()

	ctx := s.baseCtx
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failJob(job, nil, fmt.Errorf("server shutting down before job started: %w", err))
		return
	}
	defer s.sem.Release(1)

	// A cancel request may arrive while the job waits for a worker slot.
	if cancelled, err := s.jobs.CancelRequested(ctx, job.ID); err == nil && cancelled {
		s.finishJob(job, nil, domain.JobStatusCancelled, time.Now())
		return
	}

	source, err := OpenRowSource(path, job.Filename, job.FileSize, s.batchSize, s.streamThreshold)
	if err != nil {
		s.failJob(job, nil, err)
		return
	}
	defer func() { _ = source.Close() }()

	started := time.Now()
	job.Status = domain.JobStatusProcessing
	job.StartedAt = &started
	job.TotalRows = source.TotalRows()
	job.TotalBatches = TotalBatches(job.TotalRows, s.batchSize)
	if err := s.jobs.Update(ctx, job); err != nil {
		s.failJob(job, nil, err)
		return
	}

	tracker := NewTracker(job.ID)
	dedup := NewDeduplicator()
	fields := mappedFields(source.Headers(), job.Mapping)

	for {
		batch, ok, err := source.Next(ctx)
		if err != nil {
			s.failJob(job, tracker, err)
			return
		}
		if !ok {
			break
		}

		success, failed, duplicates := s.processBatch(ctx, batch, fields, tracker, dedup)

		job.ProcessedRows += len(batch.Rows)
		job.SuccessCount += success
		job.ErrorCount += failed
		job.DuplicateCount += duplicates
		job.CurrentBatch = batch.Index + 1
		updateSpeed(&job, started, time.Now())

		if snapshot, snapErr := tracker.MarshalSnapshot(); snapErr == nil {
			job.ErrorLog = snapshot
		}
		if err := s.jobs.Update(ctx, job); err != nil {
			s.failJob(job, tracker, err)
			return
		}
		s.flushErrors(ctx, tracker)

		cancelled, err := s.jobs.CancelRequested(ctx, job.ID)
		if err != nil {
			s.failJob(job, tracker, err)
			return
		}
		if cancelled {
			s.finishJob(job, tracker, domain.JobStatusCancelled, started)
			slog.Info("import job cancelled",
				"job", job.ID, "processed", job.ProcessedRows, "batches", job.CurrentBatch)
			return
		}
	}

	s.finishJob(job, tracker, domain.JobStatusCompleted, started)
	slog.Info("import job completed",
		"job", job.ID,
		"rows", job.ProcessedRows,
		"success", job.SuccessCount,
		"errors", job.ErrorCount,
		"duplicates", job.DuplicateCount)
}

// mappedFields resolves the column mapping against the header order once so
// per-row work is a slice walk, not map lookups on raw header strings.
func mappedFields(headers []string, mapping domain.ColumnMapping) []string {
	trimmedMapping := make(map[string]string, len(mapping))
	for raw, field := range mapping {
		trimmedMapping[strings.TrimSpace(raw)] = field
	}

	fields := make([]string, len(headers))
	for i, header := range headers {
		fields[i] = trimmedMapping[strings.TrimSpace(header)]
	}
	return fields
}

type candidateRow struct {
	line    int
	contact domain.Contact
	email   string
}

// processBatch runs conversion, validation, dedup, and the bulk write for
// one batch. Every row of the batch is accounted for exactly once in the
// returned success/failed/duplicate counts.
func (s *Service) processBatch(
	ctx context.Context,
	batch Batch,
	fields []string,
	tracker *Tracker,
	dedup *Deduplicator,
) (success, failed, duplicates int) {
	candidates := make([]candidateRow, 0, len(batch.Rows))

	for _, row := range batch.Rows {
		raw := make(map[string]string)
		for i, field := range fields {
			if field == "" || i >= len(row.Values) {
				continue
			}
			raw[field] = row.Values[i]
		}

		values, issues := ConvertRow(raw)
		for _, issue := range issues {
			// Conversion failures null the field and the row proceeds; the
			// entry is informational and does not count against the row.
			tracker.AddConversion(row.Line, issue.Column, issue.RawValue, issue.Message)
		}
		MergeFullName(values)

		if problems := ValidateRow(values); len(problems) > 0 {
			for _, p := range problems {
				tracker.AddValidation(row.Line, p.Column, p.RawValue, p.Message)
			}
			failed++
			continue
		}

		contact := domain.NewContact(values)
		email := contact.NormalizedEmail()
		if dedup.Seen(email) {
			tracker.AddDuplicate(row.Line, email)
			duplicates++
			continue
		}
		dedup.Mark(email)
		candidates = append(candidates, candidateRow{line: row.Line, contact: contact, email: email})
	}

	if len(candidates) == 0 {
		return success, failed, duplicates
	}

	emails := make([]string, len(candidates))
	for i, c := range candidates {
		emails[i] = c.email
	}
	existing, err := s.contacts.FindExistingEmails(ctx, emails)
	if err != nil {
		tracker.AddStorage(candidates[0].line,
			fmt.Sprintf("batch %d failed: %v", batch.Index+1, err))
		failed += len(candidates)
		return success, failed, duplicates
	}

	lineByEmail := make(map[string]int, len(candidates))
	toWrite := make([]domain.Contact, 0, len(candidates))
	for _, c := range candidates {
		if existing[c.email] {
			tracker.AddDuplicate(c.line, c.email)
			duplicates++
			continue
		}
		lineByEmail[c.email] = c.line
		toWrite = append(toWrite, c.contact)
	}
	if len(toWrite) == 0 {
		return success, failed, duplicates
	}

	result, err := s.contacts.CreateBatch(ctx, toWrite)
	if err != nil {
		// All-or-nothing per batch: the transaction rolled back, every
		// surviving record counts as an error, logged once at batch
		// granularity, and the job moves on to the next batch.
		tracker.AddStorage(lineByEmail[toWrite[0].NormalizedEmail()],
			fmt.Sprintf("batch %d failed: %v", batch.Index+1, err))
		failed += len(toWrite)
		return success, failed, duplicates
	}

	success += result.Inserted
	for _, email := range result.ConflictEmails {
		// Lost the uniqueness race against a concurrent job; surfaces as a
		// duplicate rather than a silent double insert.
		tracker.AddDuplicate(lineByEmail[email], email)
		duplicates++
	}

	return success, failed, duplicates
}

func updateSpeed(job *domain.ImportJob, started, now time.Time) {
	elapsed := now.Sub(started).Seconds()
	if elapsed <= 0 {
		return
	}
	job.RowsPerSecond = float64(job.ProcessedRows) / elapsed

	remaining := job.TotalRows - job.ProcessedRows
	if job.RowsPerSecond > 0 && remaining > 0 {
		eta := now.Add(time.Duration(float64(remaining) / job.RowsPerSecond * float64(time.Second)))
		job.EstimatedCompletion = &eta
	} else {
		job.EstimatedCompletion = nil
	}
}

// finishJob moves the job to a terminal state and persists the final record.
func (s *Service) finishJob(job domain.ImportJob, tracker *Tracker, status domain.JobStatus, started time.Time) {
	if !job.Status.CanTransition(status) {
		slog.Warn("illegal job status transition skipped",
			"job", job.ID, "from", job.Status, "to", status)
		return
	}

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	job.EstimatedCompletion = nil
	if elapsed := now.Sub(started).Seconds(); elapsed > 0 {
		job.RowsPerSecond = float64(job.ProcessedRows) / elapsed
	}
	if tracker != nil {
		if snapshot, err := tracker.MarshalSnapshot(); err == nil {
			job.ErrorLog = snapshot
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("failed to persist terminal job state", "job", job.ID, "error", err)
	}
	if tracker != nil {
		s.flushErrors(ctx, tracker)
	}
}

// failJob aborts the job, recording the failure message in its error log.
// Rows from already-committed batches stay committed.
func (s *Service) failJob(job domain.ImportJob, tracker *Tracker, cause error) {
	slog.Error("import job failed", "job", job.ID, "error", cause)

	if tracker == nil {
		tracker = NewTracker(job.ID)
	}
	tracker.AddStorage(0, cause.Error())

	now := time.Now()
	if job.Status.CanTransition(domain.JobStatusFailed) {
		job.Status = domain.JobStatusFailed
	}
	job.CompletedAt = &now
	job.EstimatedCompletion = nil
	if snapshot, err := tracker.MarshalSnapshot(); err == nil {
		job.ErrorLog = snapshot
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("failed to persist failed job state", "job", job.ID, "error", err)
	}
	s.flushErrors(ctx, tracker)
}

// flushErrors persists newly tracked entries. Best effort: the snapshot on
// the job row is authoritative, the error table is the queryable copy.
func (s *Service) flushErrors(ctx context.Context, tracker *Tracker) {
	entries := tracker.Unflushed()
	if len(entries) == 0 {
		return
	}
	if err := s.errLog.RecordBatch(ctx, entries); err != nil {
		slog.Warn("failed to persist import errors", "count", len(entries), "error", err)
	}
}

// StatusView is the job snapshot returned to status queries.
type StatusView struct {
	domain.ImportJob
	ProgressPercentage float64 `json:"progress_percentage"`
	RemainingRows      int     `json:"remaining_rows"`
}

// Status returns a best-effort snapshot of the job.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (StatusView, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return StatusView{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return StatusView{
		ImportJob:          job,
		ProgressPercentage: job.ProgressPercentage(),
		RemainingRows:      job.RemainingRows(),
	}, nil
}

// Cancel requests cooperative cancellation, honored at the next batch
// boundary. Returns false when the job is already terminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return false, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return s.jobs.RequestCancel(ctx, id)
}

// Recent lists most-recent-first job summaries, optionally for one user.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]domain.ImportJob, error) {
	return s.jobs.ListRecent(ctx, userID, limit)
}

// Errors returns the persisted error log for a job, optionally filtered by
// category and row number.
func (s *Service) Errors(ctx context.Context, jobID uuid.UUID, category domain.ErrorCategory, rowNumber *int, limit, offset int) ([]domain.ImportError, error) {
	return s.errLog.List(ctx, jobID, category, rowNumber, limit, offset)
}

// Close waits for running jobs until ctx expires, then aborts the rest;
// aborted jobs reach FAILED through the normal failure path.
func (s *Service) Close(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.cancel()
		<-drained
	}
	s.cancel()
}
