package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

const (
	testClassID   uint = 1
	testTeacherID uint = 100
	testStudentID uint = 10
	otherStudent  uint = 11
	outsiderID    uint = 12
)

var baseTime = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type stubUploader struct {
	mu      sync.Mutex
	names   []string
	deleted []string
	err     error
	// during runs while the upload is in flight.
	during func()
}

func (s *stubUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	if s.during != nil {
		s.during()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "https://files.test/" + name, nil
}

func (s *stubUploader) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}

// retained lists stored files that were not deleted again.
func (s *stubUploader) retained() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	gone := make(map[string]bool, len(s.deleted))
	for _, url := range s.deleted {
		gone[url] = true
	}
	var left []string
	for _, name := range s.names {
		if url := "https://files.test/" + name; !gone[url] {
			left = append(left, url)
		}
	}
	return left
}

func (s *stubUploader) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.Type, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type fixture struct {
	db          *gorm.DB
	clock       *clock.Manual
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	roster      repository.RosterRepository
	activity    *memoryActivityRepo
	uploader    *stubUploader
	publisher   *recordingPublisher
	validate    *validator.Validate

	teacher Actor
	student Actor
	other   Actor
	admin   Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.ConnectSQLite(database.MemoryDSN(fmt.Sprintf("%s_%d", t.Name(), time.Now().UnixNano())))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	require.NoError(t, db.Create(&[]models.Student{
		{ID: testStudentID, Name: "Siti", Email: "siti@example.com"},
		{ID: otherStudent, Name: "Budi", Email: "budi@example.com"},
		{ID: outsiderID, Name: "Rina", Email: "rina@example.com"},
	}).Error)
	require.NoError(t, db.Create(&models.Class{ID: testClassID, Name: "XI RPL 1", TeacherID: testTeacherID}).Error)
	require.NoError(t, db.Create(&[]models.Enrollment{
		{ClassID: testClassID, StudentID: testStudentID},
		{ClassID: testClassID, StudentID: otherStudent},
	}).Error)

	return &fixture{
		db:          db,
		clock:       clock.NewManual(baseTime),
		assignments: repository.NewAssignmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		roster:      repository.NewRosterRepository(db),
		activity:    &memoryActivityRepo{},
		uploader:    &stubUploader{},
		publisher:   &recordingPublisher{},
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		teacher:     Actor{ID: testTeacherID, Role: RoleTeacher},
		student:     Actor{ID: testStudentID, Role: RoleStudent},
		other:       Actor{ID: otherStudent, Role: RoleStudent},
		admin:       Actor{ID: 1, Role: RoleAdmin},
	}
}

func (f *fixture) recorder() ActivityRecorder {
	return NewActivityRecorder(f.activity, testLogger())
}

func (f *fixture) submissionService() SubmissionService {
	return NewSubmissionService(f.assignments, f.submissions, f.roster, f.uploader, f.publisher, f.clock, SubmissionConfig{DefaultMaxFileSizeMB: 1}, testLogger())
}

func (f *fixture) gradingService() GradingService {
	return NewGradingService(f.assignments, f.submissions, f.roster, f.validate, f.recorder(), f.publisher, f.clock, testLogger())
}

func (f *fixture) assignmentService() AssignmentService {
	return NewAssignmentService(f.assignments, f.roster, f.validate, f.uploader, f.recorder(), f.clock, testLogger())
}

// createAssignment stores a published plain assignment due at baseTime+24h, adjusted by mutate.
func (f *fixture) createAssignment(t *testing.T, mutate func(*models.Assignment)) models.Assignment {
	t.Helper()

	due := baseTime.Add(24 * time.Hour)
	assignment := models.Assignment{
		ClassID:     testClassID,
		Type:        models.AssignmentTypeAssignment,
		Title:       "Laporan Praktikum",
		DueAt:       &due,
		IsPublished: true,
		MaxGrade:    models.DefaultMaxGrade,
		CreatedBy:   testTeacherID,
	}
	if mutate != nil {
		mutate(&assignment)
	}
	require.NoError(t, f.db.Create(&assignment).Error)
	return assignment
}

func (f *fixture) reload(t *testing.T, assignmentID, studentID uint) models.Submission {
	t.Helper()
	submission, err := f.submissions.GetByAssignmentAndStudent(context.Background(), assignmentID, studentID)
	require.NoError(t, err)
	return submission
}

func newFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(int64(len(content)) + 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["file"][0]
}

func pdfFile(t *testing.T, name, body string) *multipart.FileHeader {
	t.Helper()
	return newFileHeader(t, name, []byte("%PDF-1.4\n"+body+"\n%%EOF"))
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func containsAll(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
