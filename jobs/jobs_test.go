package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

type fakeMarker struct {
	n     int64
	err   error
	calls int
}

func (f *fakeMarker) MarkOverdue(ctx context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

type fakeCleaner struct {
	got time.Duration
	n   int64
	err error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.got = olderThan
	return f.n, f.err
}

type fakeEnqueuer struct {
	name string
	err  error
}

func (f *fakeEnqueuer) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	f.name = name
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Type: name, Queue: QueueDefault}, nil
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestMarkOverdueJobCallsService(t *testing.T) {
	marker := &fakeMarker{n: 3}
	job := NewMarkOverdueJob(marker, nil, testMetrics())
	task, err := NewMarkOverdueTask(time.Date(2026, 3, 1, 0, 15, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, marker.calls)
}

func TestMarkOverdueJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewMarkOverdueJob(&fakeMarker{err: boom}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskMarkOverdue, nil))
	require.ErrorIs(t, err, boom)
}

func TestMarkOverdueJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewMarkOverdueJob(&fakeMarker{}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskMarkOverdue, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMarkOverdueJobRequiresService(t *testing.T) {
	var job *MarkOverdueJob
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskMarkOverdue, nil)))
}

func TestIdempotencyCleanupUsesConfiguredRetention(t *testing.T) {
	store := &fakeCleaner{n: 12}
	job := NewIdempotencyCleanupJob(store, 720*time.Hour, nil, testMetrics())
	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 720*time.Hour, store.got)
}

func TestIdempotencyCleanupPayloadOverridesRetention(t *testing.T) {
	store := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(store, 720*time.Hour, nil, testMetrics())
	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.got)
}

func TestIdempotencyCleanupRejectsZeroRetention(t *testing.T) {
	job := NewIdempotencyCleanupJob(&fakeCleaner{}, 0, nil, testMetrics())
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
}

func TestTaskByName(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	task, err := TaskByName(TaskMarkOverdue, now)
	require.NoError(t, err)
	require.Equal(t, TaskMarkOverdue, task.Type())
	var payload MarkOverduePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.ScheduledFor.Equal(now))

	task, err = TaskByName(TaskIdempotencyCleanup, now)
	require.NoError(t, err)
	require.Equal(t, TaskIdempotencyCleanup, task.Type())

	_, err = TaskByName("mail:send", now)
	require.Error(t, err)
}

func newJobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHealthWithoutInspector(t *testing.T) {
	srv := newJobsRouter(NewHandler(nil, nil, nil))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

func TestTriggerEndpoint(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newJobsRouter(NewHandler(nil, enq, nil))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskMarkOverdue+"/trigger", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, TaskMarkOverdue, enq.name)
	require.JSONEq(t, `{"job":"installments:mark-overdue","task_id":"task-1"}`, rec.Body.String())
}

func TestTriggerEndpointErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newJobsRouter(NewHandler(nil, nil, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/x/trigger", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	enq := &fakeEnqueuer{err: errors.New("jobs: unsupported job x")}
	newJobsRouter(NewHandler(nil, enq, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/x/trigger", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	enq = &fakeEnqueuer{err: errors.New("redis down")}
	newJobsRouter(NewHandler(nil, enq, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskIdempotencyCleanup+"/trigger", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
