package datasets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rocklandcensus/internal/blob"
	"rocklandcensus/internal/reports"
)

// ArtifactPrefix is the blob key prefix for archived narratives.
const ArtifactPrefix = "reports/"

// ReportInput is a finished narrative handed to the archive.
type ReportInput struct {
	Keys        []string
	Instruction string
	Temperature float64
	Provider    string
	Summary     string
}

// ReportArchive queues generated narratives for storage and exposes them.
type ReportArchive interface {
	Enqueue(ctx context.Context, input ReportInput) (reports.Report, error)
	Get(ctx context.Context, id string) (reports.Report, bool, error)
	List(ctx context.Context, limit int) ([]reports.Report, error)
	Artifact(ctx context.Context, r reports.Report) (string, error)
	ArtifactURL(ctx context.Context, r reports.Report, expiry time.Duration) (string, error)
}

// AuditLogger records archive lifecycle transitions.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures one transition.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ReportID   string         `json:"report_id"`
	Status     reports.Status `json:"status"`
	Keys       []string       `json:"zips,omitempty"`
	Note       string         `json:"note,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

const auditAction = "report_archive"

// Archiver writes narratives to the blob store and their metadata to the
// report store on a background goroutine.
type Archiver struct {
	store  reports.Store
	blobs  blob.Store
	audit  AuditLogger
	logger *zap.Logger

	queue   chan archiveTask
	mu      sync.Mutex
	pending map[string]reports.Report
	started bool
	closed  bool

	stopping chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// errArchiveStopped marks reports that were queued when the worker stopped
// and could not be stored before the stop deadline.
var errArchiveStopped = errors.New("archive stopped")

type archiveTask struct {
	id      string
	summary string
}

// NewArchiver constructs an archive worker. A nil audit logger disables
// auditing; a nil logger discards logs.
func NewArchiver(store reports.Store, blobs blob.Store, audit AuditLogger, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Archiver{
		store:    store,
		blobs:    blobs,
		audit:    audit,
		logger:   logger,
		queue:    make(chan archiveTask, 32),
		pending:  make(map[string]reports.Report),
		stopping: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing queued reports.
func (a *Archiver) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	a.wg.Add(1)
	go a.loop()
}

// Stop closes intake and drains the queue. Reports still queued when ctx
// expires are marked failed and ctx.Err() is returned.
func (a *Archiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.stopping)
		if !a.started {
			a.started = true
			a.wg.Add(1)
			go a.loop()
		}
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		return ctx.Err()
	}
}

func (a *Archiver) loop() {
	defer a.wg.Done()
	for {
		select {
		case task := <-a.queue:
			a.process(task)
		case <-a.stopping:
			a.drain()
			return
		}
	}
}

// drain empties the queue once intake is closed. After a forced stop the
// remaining reports are failed instead of stored.
func (a *Archiver) drain() {
	for {
		select {
		case task := <-a.queue:
			if a.ctx.Err() != nil {
				a.abandon(task)
				continue
			}
			a.process(task)
		default:
			return
		}
	}
}

func (a *Archiver) abandon(task archiveTask) {
	a.mu.Lock()
	report, ok := a.pending[task.id]
	delete(a.pending, task.id)
	a.mu.Unlock()
	if ok {
		a.finish(report, "", errArchiveStopped)
	}
}

// Enqueue records a queued report and schedules its narrative for storage.
func (a *Archiver) Enqueue(ctx context.Context, input ReportInput) (reports.Report, error) {
	if a.store == nil || a.blobs == nil {
		return reports.Report{}, errors.New("report archive not configured")
	}
	if strings.TrimSpace(input.Summary) == "" {
		return reports.Report{}, errors.New("report summary required")
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return reports.Report{}, errArchiveStopped
	}

	now := time.Now().UTC()
	report := reports.Report{
		ID:          uuid.NewString(),
		Status:      reports.StatusQueued,
		Keys:        append([]string(nil), input.Keys...),
		Instruction: input.Instruction,
		Temperature: input.Temperature,
		Provider:    input.Provider,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.Save(ctx, report); err != nil {
		return reports.Report{}, fmt.Errorf("save report: %w", err)
	}

	a.record(ctx, report, "")

	a.mu.Lock()
	var rejected error
	if a.closed {
		rejected = errArchiveStopped
	} else {
		select {
		case a.queue <- archiveTask{id: report.ID, summary: input.Summary}:
			a.pending[report.ID] = report.Clone()
		default:
			rejected = errors.New("report queue full")
		}
	}
	a.mu.Unlock()
	if rejected != nil {
		a.finish(report, "", rejected)
		return reports.Report{}, rejected
	}
	return report, nil
}

// Get returns the stored report.
func (a *Archiver) Get(ctx context.Context, id string) (reports.Report, bool, error) {
	return a.store.Get(ctx, id)
}

// List returns stored reports, newest first.
func (a *Archiver) List(ctx context.Context, limit int) ([]reports.Report, error) {
	return a.store.List(ctx, limit)
}

// Artifact reads the narrative stored for r.
func (a *Archiver) Artifact(ctx context.Context, r reports.Report) (string, error) {
	if r.ArtifactKey == "" {
		return "", blob.ErrNotFound
	}
	_, rc, err := a.blobs.Get(ctx, r.ArtifactKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (a *Archiver) process(task archiveTask) {
	a.mu.Lock()
	report, ok := a.pending[task.id]
	delete(a.pending, task.id)
	a.mu.Unlock()
	if !ok {
		return
	}

	report.Status = reports.StatusRunning
	report.UpdatedAt = time.Now().UTC()
	if err := a.store.Save(context.WithoutCancel(a.ctx), report); err != nil {
		a.logger.Warn("report status update failed", zap.String("report_id", report.ID), zap.Error(err))
	}
	a.record(a.ctx, report, "")

	key := ArtifactPrefix + report.ID + ".md"
	_, err := a.blobs.Put(a.ctx, key, strings.NewReader(renderMarkdown(report, task.summary)), blob.PutOptions{
		ContentType: "text/markdown",
		Metadata: map[string]string{
			"zips":        strings.Join(report.Keys, ","),
			"temperature": strconv.FormatFloat(report.Temperature, 'f', -1, 64),
			"provider":    report.Provider,
		},
	})
	if err != nil {
		a.finish(report, "", fmt.Errorf("store artifact: %w", err))
		return
	}
	a.finish(report, key, nil)
}

func (a *Archiver) finish(report reports.Report, artifactKey string, err error) {
	now := time.Now().UTC()
	report.UpdatedAt = now
	report.CompletedAt = &now
	report.ArtifactKey = artifactKey
	note := ""
	if err != nil {
		report.Status = reports.StatusFailed
		report.Error = err.Error()
		note = report.Error
		a.logger.Warn("report archive failed", zap.String("report_id", report.ID), zap.Error(err))
	} else {
		report.Status = reports.StatusSucceeded
		report.Error = ""
	}
	// Terminal states are saved even after a forced stop.
	if saveErr := a.store.Save(context.WithoutCancel(a.ctx), report); saveErr != nil {
		a.logger.Warn("report save failed", zap.String("report_id", report.ID), zap.Error(saveErr))
	}
	a.record(a.ctx, report, note)
}

func (a *Archiver) record(ctx context.Context, r reports.Report, note string) {
	if a.audit == nil {
		return
	}
	a.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     auditAction,
		ReportID:   r.ID,
		Status:     r.Status,
		Keys:       append([]string(nil), r.Keys...),
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func renderMarkdown(r reports.Report, summary string) string {
	var b strings.Builder
	b.WriteString("# Rockland County census report\n\n")
	fmt.Fprintf(&b, "- ZIP codes: %s\n", strings.Join(r.Keys, ", "))
	fmt.Fprintf(&b, "- Temperature: %s\n", strconv.FormatFloat(r.Temperature, 'f', -1, 64))
	if r.Provider != "" {
		fmt.Fprintf(&b, "- Provider: %s\n", r.Provider)
	}
	fmt.Fprintf(&b, "- Generated: %s\n", r.CreatedAt.Format(time.RFC3339))
	if r.Instruction != "" {
		fmt.Fprintf(&b, "\n## Request\n\n%s\n", r.Instruction)
	}
	b.WriteString("\n## Summary\n\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n")
	return b.String()
}

// ZapAuditLogger writes audit entries to a zap logger.
type ZapAuditLogger struct {
	Logger *zap.Logger
}

// Record implements AuditLogger.
func (l ZapAuditLogger) Record(_ context.Context, e AuditEntry) {
	if l.Logger == nil {
		return
	}
	l.Logger.Info("audit",
		zap.String("action", e.Action),
		zap.String("report_id", e.ReportID),
		zap.String("status", string(e.Status)),
		zap.Strings("zips", e.Keys),
		zap.String("note", e.Note))
}

// MemoryAuditLog keeps audit entries in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record implements AuditLogger.
func (l *MemoryAuditLog) Record(_ context.Context, e AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}

// ArtifactURL returns a time-limited link to the stored narrative, or
// blob.ErrUnsupported when the backend cannot sign links.
func (a *Archiver) ArtifactURL(ctx context.Context, r reports.Report, expiry time.Duration) (string, error) {
	if r.ArtifactKey == "" {
		return "", blob.ErrNotFound
	}
	return a.blobs.URL(ctx, r.ArtifactKey, expiry)
}
