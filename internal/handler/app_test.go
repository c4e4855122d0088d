package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/clock"
	"github.com/noah-isme/gema-classroom-api/internal/config"
	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/handler"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/internal/router"
	"github.com/noah-isme/gema-classroom-api/internal/service"
)

const (
	classID   uint = 1
	teacherID uint = 100
	studentID uint = 10
	peerID    uint = 11

	defaultMaxFileSizeMB = 1
)

var baseTime = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

type caller struct {
	id   uint
	role string
}

var (
	teacher   = caller{id: teacherID, role: service.RoleTeacher}
	student   = caller{id: studentID, role: service.RoleStudent}
	peer      = caller{id: peerID, role: service.RoleStudent}
	anonymous = caller{}
)

type memoryUploader struct {
	mu    sync.Mutex
	names []string
}

func (u *memoryUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	return "https://files.test/" + name, nil
}

func (u *memoryUploader) Delete(context.Context, string) error {
	return nil
}

type testApp struct {
	app      *fiber.App
	db       *gorm.DB
	clock    *clock.Manual
	uploader *memoryUploader
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Details map[string]interface{} `json:"details"`
}

// headerIdentity stands in for the JWT layer: it copies X-Test-User/X-Test-Role into locals.
func headerIdentity(c *fiber.Ctx) error {
	if raw := c.Get("X-Test-User"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("user_id", uint(id))
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupApp(t *testing.T, identity fiber.Handler) *testApp {
	t.Helper()

	db, err := database.ConnectSQLite(database.MemoryDSN(fmt.Sprintf("handler_%s_%d", t.Name(), time.Now().UnixNano())))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	require.NoError(t, db.Create(&[]models.Student{
		{ID: studentID, Name: "Siti", Email: "siti@example.com"},
		{ID: peerID, Name: "Budi", Email: "budi@example.com"},
	}).Error)
	require.NoError(t, db.Create(&models.Class{ID: classID, Name: "XI RPL 1", TeacherID: teacherID}).Error)
	require.NoError(t, db.Create(&[]models.Enrollment{
		{ClassID: classID, StudentID: studentID},
		{ClassID: classID, StudentID: peerID},
	}).Error)

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	clk := clock.NewManual(baseTime)
	uploader := &memoryUploader{}

	assignments := repository.NewAssignmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	roster := repository.NewRosterRepository(db)
	activity := service.NewActivityRecorder(repository.NewActivityLogRepository(db), logger)

	assignmentService := service.NewAssignmentService(assignments, roster, validate, uploader, activity, clk, logger)
	submissionService := service.NewSubmissionService(assignments, submissions, roster, uploader, nil, clk, service.SubmissionConfig{DefaultMaxFileSizeMB: defaultMaxFileSizeMB}, logger)
	gradingService := service.NewGradingService(assignments, submissions, roster, validate, activity, nil, clk, logger)
	autoCloseService := service.NewAutoCloseService(assignments, submissions, roster, activity, nil, nil, clk, service.AutoCloseConfig{}, logger)

	app := fiber.New(fiber.Config{BodyLimit: handler.BodyLimit(defaultMaxFileSizeMB)})
	middleware.Register(app, middleware.Config{Logger: &logger})

	if identity == nil {
		identity = headerIdentity
	}
	router.Register(app, config.Config{AppName: "Test", AppEnv: "test"}, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, nil, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, autoCloseService, logger),
		JWTMiddleware:     identity,
		Clock:             clk,
	})

	return &testApp{app: app, db: db, clock: clk, uploader: uploader}
}

func (a *testApp) do(t *testing.T, req *http.Request, who caller) (int, envelope) {
	t.Helper()

	if who.id != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(who.id), 10))
	}
	if who.role != "" {
		req.Header.Set("X-Test-Role", who.role)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func (a *testApp) json(t *testing.T, method, path string, payload interface{}, who caller) (int, envelope) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return a.do(t, req, who)
}

func (a *testApp) upload(t *testing.T, path, fileName string, content []byte, who caller) (int, envelope) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return a.do(t, req, who)
}

// createAssignment posts an assignment as the class teacher and returns its id.
func (a *testApp) createAssignment(t *testing.T, payload map[string]interface{}) uint {
	t.Helper()

	status, body := a.json(t, http.MethodPost, fmt.Sprintf("/api/v2/classes/%d/assignments", classID), payload, teacher)
	require.Equal(t, fiber.StatusCreated, status, body.Message)

	var created struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &created))
	require.NotZero(t, created.ID)
	return created.ID
}

func plainAssignment(due time.Time) map[string]interface{} {
	return map[string]interface{}{
		"type":         "assignment",
		"title":        "Laporan Praktikum",
		"description":  "Upload the lab report",
		"due_at":       due.Format(time.RFC3339),
		"is_published": true,
	}
}

func pdf(body string) []byte {
	return []byte("%PDF-1.4\n" + body + "\n%%EOF")
}

type submissionView struct {
	ID                uint       `json:"id"`
	Status            string     `json:"status"`
	IsLate            bool       `json:"is_late"`
	OpenForWrite      bool       `json:"open_for_write"`
	EffectiveDeadline *time.Time `json:"effective_deadline"`
	PersonalDueAt     *time.Time `json:"personal_due_at"`
	FileURL           string     `json:"file_url"`
	Grade             *float64   `json:"grade"`
	ServerTime        time.Time  `json:"server_time"`
}

func decodeSubmission(t *testing.T, body envelope) submissionView {
	t.Helper()
	var view submissionView
	require.NoError(t, json.Unmarshal(body.Data, &view))
	return view
}

func path(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
