package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/vision-care-api/internal/models"
	"github.com/noah-isme/vision-care-api/internal/repository"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

type memTxKey struct{}

// memDB is an in-memory stand-in for PostgreSQL: transactions are serialized and roll back
// by restoring a snapshot, which is enough to observe atomicity and exclusive claims.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	students map[string]models.Student
	frames   map[string]models.Frame
	sizes    map[string]bool
	history  []models.PhaseHistoryEntry
	seq      int64

	historyErr error
	commits    int
}

func newMemDB() *memDB {
	return &memDB{
		students: make(map[string]models.Student),
		frames:   make(map[string]models.Frame),
		sizes:    make(map[string]bool),
	}
}

type memSnapshot struct {
	students map[string]models.Student
	frames   map[string]models.Frame
	history  []models.PhaseHistoryEntry
	seq      int64
}

func (m *memDB) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		students: make(map[string]models.Student, len(m.students)),
		frames:   make(map[string]models.Frame, len(m.frames)),
		history:  append([]models.PhaseHistoryEntry(nil), m.history...),
		seq:      m.seq,
	}
	for k, v := range m.students {
		snap.students[k] = v
	}
	for k, v := range m.frames {
		snap.frames[k] = v
	}
	return snap
}

func (m *memDB) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students = snap.students
	m.frames = snap.frames
	m.history = snap.history
	m.seq = snap.seq
}

func (m *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

func strPtr(v string) *string { return &v }

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memDB) addStudent(id string, phase models.Phase, frameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.Student{ID: id, FullName: "Student " + id, CurrentPhase: phase, Version: 1}
	if frameID != "" {
		s.AllocatedFrameID = strPtr(frameID)
	}
	m.students[id] = s
}

func (m *memDB) addFrame(id string, status models.FrameStatus, holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := models.Frame{ID: id, SerialNumber: "SN-" + id, Type: models.FrameTypeUnisex, Status: status}
	if holder != "" {
		f.AllocatedStudentID = strPtr(holder)
	}
	m.frames[id] = f
}

func (m *memDB) student(t *testing.T, id string) models.Student {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		t.Fatalf("student %s not seeded", id)
	}
	return s
}

func (m *memDB) frame(t *testing.T, id string) models.Frame {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.frames[id]
	if !ok {
		t.Fatalf("frame %s not seeded", id)
	}
	return f
}

func (m *memDB) historyFor(studentID string) []models.PhaseHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PhaseHistoryEntry
	for _, e := range m.history {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out
}

func (m *memDB) countFrames(status models.FrameStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.frames {
		if f.Status == status {
			n++
		}
	}
	return n
}

type memStudents struct{ db *memDB }

func (r memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memStudents) LockByID(ctx context.Context, id string) (*models.Student, error) {
	if ctx.Value(memTxKey{}) == nil {
		return nil, errors.New("LockByID outside transaction")
	}
	return r.FindByID(ctx, id)
}

func (r memStudents) UpdateWorkflow(ctx context.Context, params repository.UpdateWorkflowParams) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[params.ID]
	if !ok || s.Version != params.ExpectedVersion {
		return sql.ErrNoRows
	}
	if params.AllocatedFrameID != nil && !params.Phase.HoldsFrame() {
		return errors.New("check constraint students_frame_only_in_allocation_zone")
	}
	s.CurrentPhase = params.Phase
	s.AllocatedFrameID = params.AllocatedFrameID
	s.Version++
	s.UpdatedAt = params.UpdatedAt
	r.db.students[params.ID] = s
	return nil
}

func (r memStudents) ClearAllocatedFrame(ctx context.Context, studentID, frameID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[studentID]
	if !ok || s.AllocatedFrameID == nil || *s.AllocatedFrameID != frameID {
		return sql.ErrNoRows
	}
	s.AllocatedFrameID = nil
	s.Version++
	s.UpdatedAt = at
	r.db.students[studentID] = s
	return nil
}

func (r memStudents) SetAllocatedFrame(ctx context.Context, studentID, frameID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.students[studentID]
	if !ok || s.AllocatedFrameID != nil {
		return sql.ErrNoRows
	}
	s.AllocatedFrameID = strPtr(frameID)
	s.Version++
	s.UpdatedAt = at
	r.db.students[studentID] = s
	return nil
}

type memFrames struct{ db *memDB }

func (r memFrames) Create(ctx context.Context, frame *models.Frame) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, f := range r.db.frames {
		if f.SerialNumber == frame.SerialNumber {
			return fmt.Errorf("create frame: %w", &pq.Error{Code: "23505", Message: "duplicate key value"})
		}
	}
	if frame.ID == "" {
		frame.ID = fmt.Sprintf("frame-%d", len(r.db.frames)+1)
	}
	frame.Status = models.FrameStatusAvailable
	frame.AllocatedStudentID = nil
	frame.UpdatedAt = frame.CreatedAt
	r.db.frames[frame.ID] = *frame
	return nil
}

func (r memFrames) FindByID(ctx context.Context, id string) (*models.Frame, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.frames[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &f, nil
}

func (r memFrames) LockByID(ctx context.Context, id string) (*models.Frame, error) {
	if ctx.Value(memTxKey{}) == nil {
		return nil, errors.New("LockByID outside transaction")
	}
	return r.FindByID(ctx, id)
}

func (r memFrames) List(ctx context.Context, filter models.FrameFilter) ([]models.Frame, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var matched []models.Frame
	for _, f := range r.db.frames {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Type != "" && f.Type != filter.Type {
			continue
		}
		if filter.GeneralSize && f.SizeID != nil {
			continue
		}
		if !filter.GeneralSize && filter.SizeID != "" && (f.SizeID == nil || *f.SizeID != filter.SizeID) {
			continue
		}
		matched = append(matched, f)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SerialNumber < matched[j].SerialNumber })
	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r memFrames) Claim(ctx context.Context, frameID, studentID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.frames[frameID]
	if !ok || f.Status != models.FrameStatusAvailable {
		return sql.ErrNoRows
	}
	f.Status = models.FrameStatusAllocated
	f.AllocatedStudentID = strPtr(studentID)
	f.UpdatedAt = at
	r.db.frames[frameID] = f
	return nil
}

func (r memFrames) Release(ctx context.Context, frameID, studentID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.frames[frameID]
	if !ok || !f.AllocatedTo(studentID) {
		return sql.ErrNoRows
	}
	f.Status = models.FrameStatusAvailable
	f.AllocatedStudentID = nil
	f.UpdatedAt = at
	r.db.frames[frameID] = f
	return nil
}

func (r memFrames) UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error {
	if params.To == models.FrameStatusAllocated {
		return errors.New("update frame status: use Claim to allocate")
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.frames[params.ID]
	if !ok || f.Status != params.From || !sameID(f.AllocatedStudentID, params.ExpectedStudentID) {
		return sql.ErrNoRows
	}
	f.Status = params.To
	f.AllocatedStudentID = nil
	f.UpdatedAt = params.At
	r.db.frames[params.ID] = f
	return nil
}

func (r memFrames) UpdateSize(ctx context.Context, id string, sizeID *string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.frames[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.SizeID = sizeID
	f.UpdatedAt = at
	r.db.frames[id] = f
	return nil
}

type memSizes struct{ db *memDB }

func (r memSizes) Exists(ctx context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.sizes[id], nil
}

type memHistory struct{ db *memDB }

func (r memHistory) Insert(ctx context.Context, entry *models.PhaseHistoryEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.historyErr != nil {
		return r.db.historyErr
	}
	r.db.seq++
	entry.Seq = r.db.seq
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("history-%d", entry.Seq)
	}
	r.db.history = append(r.db.history, *entry)
	return nil
}

func (r memHistory) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.PhaseHistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.PhaseHistoryEntry
	for _, e := range r.db.history {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].Seq > out[j].Seq
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memCache implements CacheRepository for listing cache tests.
type memCache struct {
	mu          sync.Mutex
	entries     map[string]interface{}
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]interface{})}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	list, ok := v.(cachedFrameList)
	target, okDest := dest.(*cachedFrameList)
	if !ok || !okDest {
		return appErrors.ErrCacheMiss
	}
	*target = list
	return nil
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	c.entries = make(map[string]interface{})
	return nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type workflowFixture struct {
	db          *memDB
	cache       *memCache
	metrics     *MetricsService
	allocator   *FrameAllocator
	history     *PhaseHistoryService
	transitions *TransitionService
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	db := newMemDB()
	cache := newMemCache()
	metrics := NewMetricsService()
	clock := &stepClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	students := memStudents{db: db}
	allocator := NewFrameAllocator(db, memFrames{db: db}, students, memSizes{db: db}, nil, nil,
		WithFrameCache(NewCacheService(cache, metrics, time.Minute, nil, true), time.Minute),
		WithFrameMetrics(metrics),
		WithFrameClock(clock.Now))
	history := NewPhaseHistoryService(memHistory{db: db}, students, 0, nil)
	transitions := NewTransitionService(db, students, allocator, history, nil,
		WithTransitionMetrics(metrics),
		WithTransitionClock(clock.Now))

	return &workflowFixture{
		db:          db,
		cache:       cache,
		metrics:     metrics,
		allocator:   allocator,
		history:     history,
		transitions: transitions,
	}
}

// requireAllocationInvariant checks that student and frame pointers agree everywhere.
func requireAllocationInvariant(t *testing.T, db *memDB) {
	t.Helper()
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.students {
		if s.AllocatedFrameID == nil {
			continue
		}
		if !s.CurrentPhase.HoldsFrame() {
			t.Fatalf("student %s in %s holds frame %s", s.ID, s.CurrentPhase, *s.AllocatedFrameID)
		}
		f, ok := db.frames[*s.AllocatedFrameID]
		if !ok || !f.AllocatedTo(s.ID) {
			t.Fatalf("student %s points at frame %s which is not allocated to it", s.ID, *s.AllocatedFrameID)
		}
	}
	for _, f := range db.frames {
		if f.Status != models.FrameStatusAllocated {
			if f.AllocatedStudentID != nil {
				t.Fatalf("frame %s is %s but references student %s", f.ID, f.Status, *f.AllocatedStudentID)
			}
			continue
		}
		if f.AllocatedStudentID == nil {
			t.Fatalf("frame %s is allocated without a student", f.ID)
		}
		s, ok := db.students[*f.AllocatedStudentID]
		if !ok || s.HeldFrameID() != f.ID {
			t.Fatalf("frame %s allocated to %s which does not point back", f.ID, *f.AllocatedStudentID)
		}
	}
}
