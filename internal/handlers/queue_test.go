package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hire-realtime/internal/evaluation"
	"hire-realtime/internal/middleware"
	"hire-realtime/internal/mocks"
	"hire-realtime/internal/models"
	"hire-realtime/internal/notify"
	"hire-realtime/internal/telemetry"
	"hire-realtime/internal/ws"
)

func setupQueueRouter(jobs *mocks.EvaluationRepositoryMock, publisher *mocks.PublisherMock, role string) *gin.Engine {
	audit := telemetry.NewAuditEmitter(publisher, "audit.realtime", "hire-realtime", "test", nil)
	handler := NewQueueHandler(evaluation.NewReporter(jobs, nil), audit, time.Hour, 50, nil)
	r := newTestEngine("admin-1", role)
	group := r.Group("/", middleware.RequireRole("admin"))
	handler.Register(group)
	return r
}

func TestQueueStats(t *testing.T) {
	jobs := new(mocks.EvaluationRepositoryMock)
	jobs.On("CountByStatus", mock.Anything).
		Return(map[models.JobStatus]int{models.JobWaiting: 2, models.JobActive: 1, models.JobFailed: 4}, nil).Once()

	rec := doJSON(t, setupQueueRouter(jobs, new(mocks.PublisherMock), "admin"), http.MethodGet, "/queue/stats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"waiting":2,"active":1,"completed":0,"failed":4,"delayed":0}`, rec.Body.String())
	jobs.AssertExpectations(t)
}

func TestQueueRoutesRequireAdmin(t *testing.T) {
	jobs := new(mocks.EvaluationRepositoryMock)

	rec := doJSON(t, setupQueueRouter(jobs, new(mocks.PublisherMock), "recruiter"), http.MethodGet, "/queue/stats", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	jobs.AssertNotCalled(t, "CountByStatus", mock.Anything)
}

func TestQueueCleanupReportsPartialFailures(t *testing.T) {
	jobs := new(mocks.EvaluationRepositoryMock)
	publisher := new(mocks.PublisherMock)
	jobs.On("ListCompletedBefore", mock.Anything, mock.AnythingOfType("time.Time"), 2).Return([]string{"j1", "j2"}, nil).Once()
	jobs.On("DeleteJob", mock.Anything, "j1").Return(nil).Once()
	jobs.On("DeleteJob", mock.Anything, "j2").Return(assert.AnError).Once()
	publisher.On("Publish", mock.Anything, "audit.realtime", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Action == "queue_cleanup" && env.Payload.Fields["removed"] == "1" && env.Payload.Fields["max_age"] == "30m0s"
	})).Return(nil).Once()

	rec := doJSON(t, setupQueueRouter(jobs, publisher, "admin"), http.MethodPost, "/queue/cleanup", `{"max_age":"30m","max_count":2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.EqualValues(t, 1, resp["removed"])
	assert.Len(t, resp["errors"], 1)
	jobs.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestQueueCleanupDefaultsAndValidation(t *testing.T) {
	jobs := new(mocks.EvaluationRepositoryMock)
	publisher := new(mocks.PublisherMock)
	jobs.On("ListCompletedBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return time.Since(cutoff) >= time.Hour
	}), 50).Return([]string{}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.realtime", mock.Anything).Return(nil).Once()
	router := setupQueueRouter(jobs, publisher, "admin")

	rec := doJSON(t, router, http.MethodPost, "/queue/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["removed"])

	rec = doJSON(t, router, http.MethodPost, "/queue/cleanup", `{"max_age":"soon"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_max_age", decodeBody(t, rec)["code"])
	jobs.AssertExpectations(t)
}

func TestPresenceAndNotificationRoutes(t *testing.T) {
	bus := &busRecorder{}
	router := newTestEngine("actor", "recruiter")
	presence := ws.NewPresence()
	presence.Register("u2", "c1")
	presence.Register("u2", "c2")
	NewPresenceHandler(presence).Register(router)
	NewNotificationHandler(notify.NewNotifier(bus, nil), nil).Register(router)

	rec := doJSON(t, router, http.MethodGet, "/presence/u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u2","online":true,"connections":2}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/presence", "")
	assert.JSONEq(t, `{"users":["u2"]}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/notifications", `{"type":"like","recipient_id":"u2","entity_id":"post-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["delivered"])
	assert.Equal(t, []string{"user:u2"}, bus.targets(models.EventInteractionNotified))

	rec = doJSON(t, router, http.MethodPost, "/notifications", `{"type":"like","recipient_id":"actor"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["delivered"])

	rec = doJSON(t, router, http.MethodPost, "/notifications", `{"type":"poke","recipient_id":"u2"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_interaction_type", decodeBody(t, rec)["code"])
}

func TestNotificationActorMustBeCaller(t *testing.T) {
	bus := &busRecorder{}
	notifier := notify.NewNotifier(bus, nil)

	router := newTestEngine("mallory", "candidate")
	NewNotificationHandler(notifier, nil).Register(router)

	rec := doJSON(t, router, http.MethodPost, "/notifications", `{"type":"like","actor_id":"ceo","recipient_id":"u2"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "actor_forbidden", decodeBody(t, rec)["code"])

	rec = doJSON(t, router, http.MethodPost, "/notifications", `{"type":"like","actor_id":"u2","recipient_id":"u2"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, bus.targets(models.EventInteractionNotified))

	rec = doJSON(t, router, http.MethodPost, "/notifications", `{"type":"like","actor_id":"mallory","recipient_id":"u2"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	admin := newTestEngine("root", "admin")
	NewNotificationHandler(notifier, nil).Register(admin)
	rec = doJSON(t, admin, http.MethodPost, "/notifications", `{"type":"application_update","actor_id":"ats","recipient_id":"u2"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"user:u2", "user:u2"}, bus.targets(models.EventInteractionNotified))
}
