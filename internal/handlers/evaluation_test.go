package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hire-realtime/internal/evaluation"
	"hire-realtime/internal/extract"
	"hire-realtime/internal/mocks"
	"hire-realtime/internal/models"
	"hire-realtime/internal/queue"
	"hire-realtime/internal/repositories"
	"hire-realtime/internal/storage"
)

const testMaxFileSize = 2048

const sampleResume = `Jane Doe
jane.doe@example.com

Skills
Go, PostgreSQL, RabbitMQ

Experience
Backend Engineer, Acme (2019-2024)`

type evaluationFixture struct {
	store    *repositories.MemoryStore
	queue    *queue.Memory
	bus      *busRecorder
	reporter *evaluation.Reporter
	handler  *EvaluationHandler
}

func newEvaluationFixture(t *testing.T) *evaluationFixture {
	t.Helper()
	f := &evaluationFixture{
		store: repositories.NewMemoryStore(),
		queue: queue.NewMemory(10),
		bus:   &busRecorder{},
	}
	files := storage.NewLocal(t.TempDir(), "/uploads")
	require.NoError(t, files.EnsureDir())
	runner := evaluation.NewRunner(new(mocks.ScorerMock), []string{"gemini-2.5-flash"}, nil)
	orch := evaluation.NewOrchestrator(f.store, extract.NewRegistry(), runner, files, f.queue, f.bus, nil,
		evaluation.WithMaxFileSize(testMaxFileSize))
	f.reporter = evaluation.NewReporter(f.store, nil)
	f.handler = NewEvaluationHandler(orch, f.reporter, testMaxFileSize, nil)
	return f
}

func (f *evaluationFixture) router(userID, role string) *gin.Engine {
	r := newTestEngine(userID, role)
	f.handler.Register(r)
	return r
}

func multipartRequest(t *testing.T, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if fileName != "" {
		part, err := w.CreateFormFile("resume", fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/evaluations", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestSubmitEvaluationQueuesJob(t *testing.T) {
	f := newEvaluationFixture(t)
	req := multipartRequest(t, "resume.txt", []byte(sampleResume), map[string]string{"job_description": "Senior Go engineer"})
	rec := httptest.NewRecorder()
	f.router("u1", "candidate").ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeBody(t, rec)
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, string(models.JobWaiting), resp["status"])
	assert.Equal(t, 1, f.queue.Len())

	job, err := f.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, "/uploads/"+jobID+".txt", job.FileURL)
	assert.Equal(t, []string{"user:u1", models.EvaluationRoom(jobID)}, f.bus.targets(models.EventResumeStatus))
}

func TestSubmitEvaluationRejects(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		data     []byte
		fields   map[string]string
		code     string
	}{
		{name: "no file", fields: map[string]string{"job_description": "Go"}, code: "resume_required"},
		{name: "unsupported type", fileName: "resume.exe", data: []byte("MZ"), fields: map[string]string{"job_description": "Go"}, code: "unsupported_file_type"},
		{name: "empty file", fileName: "resume.txt", data: []byte{}, fields: map[string]string{"job_description": "Go"}, code: "empty_file"},
		{name: "too large", fileName: "resume.txt", data: bytes.Repeat([]byte("a"), testMaxFileSize+10), fields: map[string]string{"job_description": "Go"}, code: "file_too_large"},
		{name: "missing job description", fileName: "resume.txt", data: []byte(sampleResume), code: "job_description_required"},
		{name: "image without ocr", fileName: "scan.png", data: []byte{0x89, 0x50}, fields: map[string]string{"job_description": "Go"}, code: "ocr_required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEvaluationFixture(t)
			rec := httptest.NewRecorder()
			f.router("u1", "candidate").ServeHTTP(rec, multipartRequest(t, tc.fileName, tc.data, tc.fields))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decodeBody(t, rec)["code"])
			assert.Zero(t, f.queue.Len())
			assert.Empty(t, f.bus.deliveries)
		})
	}
}

func TestGetEvaluationStatusVisibility(t *testing.T) {
	f := newEvaluationFixture(t)
	rec := httptest.NewRecorder()
	f.router("owner", "candidate").ServeHTTP(rec, multipartRequest(t, "resume.txt", []byte(sampleResume), map[string]string{"job_description": "Go"}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)

	cases := []struct {
		name   string
		userID string
		role   string
		path   string
		status int
	}{
		{name: "owner", userID: "owner", role: "candidate", path: "/evaluations/" + jobID, status: http.StatusOK},
		{name: "admin", userID: "root", role: "admin", path: "/evaluations/" + jobID, status: http.StatusOK},
		{name: "stranger", userID: "other", role: "recruiter", path: "/evaluations/" + jobID, status: http.StatusNotFound},
		{name: "unknown job", userID: "owner", role: "candidate", path: "/evaluations/nope", status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, f.router(tc.userID, tc.role), http.MethodGet, tc.path, "")
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				resp := decodeBody(t, rec)
				assert.Equal(t, jobID, resp["job_id"])
				assert.Equal(t, string(models.StepQueued), resp["step"])
				assert.EqualValues(t, 3, resp["max_attempts"])
			}
		})
	}
}
