package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/zentag/api/internal/client"
	"github.com/zentag/api/internal/lifecycle"
	"github.com/zentag/api/internal/model"
	"github.com/zentag/api/internal/store"
)

type fakeClient struct {
	mu         sync.Mutex
	submitErr  error
	jobPrefix  string
	submits    int
	streamResp *client.SubmitResponse
	pollUpdate *model.WorkerUpdate
	pollErr    error
	polls      int
	lastClip   *client.ClipSubmitRequest
}

func (f *fakeClient) SubmitClip(ctx context.Context, req *client.ClipSubmitRequest) (*client.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastClip = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submits++
	return &client.SubmitResponse{JobID: fmt.Sprintf("%s%d", f.jobPrefix, f.submits), Status: "processing"}, nil
}

func (f *fakeClient) SubmitStream(ctx context.Context, req *client.StreamSubmitRequest) (*client.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.streamResp != nil {
		return f.streamResp, nil
	}
	return &client.SubmitResponse{JobID: req.StreamID, Status: "processing"}, nil
}

func (f *fakeClient) Poll(ctx context.Context, kind model.JobKind, jobID string) (*model.WorkerUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.pollUpdate, nil
}

type fakeScheduler struct {
	scheduled []string
}

func (f *fakeScheduler) ScheduleRefresh(ctx context.Context, kind model.JobKind, jobID string) error {
	f.scheduled = append(f.scheduled, string(kind)+":"+jobID)
	return nil
}

type testEnv struct {
	store      *store.MemoryStore
	client     *fakeClient
	reconciler *lifecycle.Reconciler
	progress   *ProgressService
	clips      *ClipService
	streams    *StreamService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewMemoryStore()
	c := &fakeClient{jobPrefix: "job-"}
	r := lifecycle.NewReconciler(s)
	return &testEnv{
		store:      s,
		client:     c,
		reconciler: r,
		progress:   NewProgressService(s, c, r),
		clips:      NewClipService(s, c, r, "https://api.example.com"),
		streams:    NewStreamService(s, c, r),
	}
}

func floatPtr(v float64) *float64 { return &v }

func clipRequest() *model.ClipGenerateRequest {
	return &model.ClipGenerateRequest{
		StreamID:  "stream-1",
		Title:     "Goal",
		StartTime: floatPtr(65),
		EndTime:   floatPtr(95),
		StreamURL: "https://cdn.example.com/stream.m3u8",
	}
}

func TestClipGenerate(t *testing.T) {
	env := setupEnv(t)
	sched := &fakeScheduler{}
	env.clips.WithRefresh(sched)
	ctx := context.Background()

	resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.JobID != "job-1" || resp.Status != string(model.JobStatusProcessing) {
		t.Errorf("unexpected response: %+v", resp)
	}

	sent := env.client.lastClip
	if sent.TrimManual.StartTime != "00:01:05" || sent.TrimManual.EndTime != "00:01:35" {
		t.Errorf("unexpected trim range: %+v", sent.TrimManual)
	}
	expectedHook := "https://api.example.com/api/clips/webhook/" + resp.ClipID
	if sent.TrimManual.WebhookURL != expectedHook || sent.WebhookURLSingleCMS != expectedHook {
		t.Errorf("expected webhook %s, got %+v", expectedHook, sent)
	}
	if sent.AspectRatio != model.AspectRatio16x9 {
		t.Errorf("expected default aspect ratio, got %s", sent.AspectRatio)
	}

	job, err := env.clips.Get(ctx, resp.ClipID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.JobID != "job-1" || job.ParentID != "stream-1" || job.OwnerID != "user-1" {
		t.Errorf("unexpected record: %+v", job)
	}
	if job.Clip.Duration != 30 || job.Clip.Speed != 1 || job.Clip.Rating != 1 {
		t.Errorf("unexpected clip details: %+v", job.Clip)
	}
	if len(sched.scheduled) != 1 || sched.scheduled[0] != "clip:job-1" {
		t.Errorf("unexpected refresh schedule: %v", sched.scheduled)
	}
}

func TestClipGenerateSubmissionFailure(t *testing.T) {
	env := setupEnv(t)
	env.client.submitErr = &client.RemoteSubmissionError{StatusCode: 503, Message: "GPU pool exhausted"}
	ctx := context.Background()

	_, err := env.clips.Generate(ctx, "user-1", clipRequest())
	var subErr *client.RemoteSubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected RemoteSubmissionError, got %v", err)
	}

	list, err := env.clips.List(ctx, &model.ClipListQuery{StreamID: "stream-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(list.Clips))
	}
	job := list.Clips[0]
	if job.Status != model.JobStatusFailed || job.ErrorMessage() != "GPU pool exhausted" {
		t.Errorf("expected failed with upstream message, got %s/%q", job.Status, job.ErrorMessage())
	}
	if job.JobID != "" {
		t.Errorf("expected no job id, got %s", job.JobID)
	}
}

func TestClipSourceURLFromStream(t *testing.T) {
	env := setupEnv(t)
	env.client.streamResp = &client.SubmitResponse{JobID: "abc", PublicHLSURL: "https://hls.example.com/abc.m3u8"}
	ctx := context.Background()

	if _, err := env.streams.Create(ctx, "user-1", &model.StreamCreateRequest{Title: "Final", URL: "https://src.example.com/v"}); err != nil {
		t.Fatalf("create stream: %v", err)
	}

	req := clipRequest()
	req.StreamID = "abc"
	req.StreamURL = ""
	if _, err := env.clips.Generate(ctx, "user-1", req); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if env.client.lastClip.TrimManual.StreamURL != "https://hls.example.com/abc.m3u8" {
		t.Errorf("expected stream playback url, got %q", env.client.lastClip.TrimManual.StreamURL)
	}
}

func TestClipWebhookBeforeJobID(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	job, err := env.clips.ApplyWebhook(ctx, resp.ClipID, &model.WorkerUpdate{
		Status:   model.JobStatusCompleted,
		VideoURL: "https://cdn.example.com/clip.mp4",
	})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if job.Status != model.JobStatusCompleted || job.Result.VideoURL != "https://cdn.example.com/clip.mp4" {
		t.Errorf("unexpected record: %+v", job)
	}
}

func TestClipList(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.clips.Generate(ctx, "user-1", clipRequest()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}

	list, err := env.clips.List(ctx, &model.ClipListQuery{StreamID: "stream-1", Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Clips) != 2 {
		t.Errorf("expected 2 clips, got %d", len(list.Clips))
	}
	expected := model.Pagination{Page: 2, Limit: 2, Total: 5, Pages: 3}
	if list.Pagination != expected {
		t.Errorf("expected %+v, got %+v", expected, list.Pagination)
	}
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		env := setupEnv(t)
		_, err := env.progress.GetStatus(ctx, model.JobKindClip, "missing")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("poll reconciles", func(t *testing.T) {
		env := setupEnv(t)
		if _, err := env.clips.Generate(ctx, "user-1", clipRequest()); err != nil {
			t.Fatalf("generate: %v", err)
		}
		env.client.pollUpdate = &model.WorkerUpdate{Status: model.JobStatusProcessing, Percent: model.IntPtr(45)}

		view, err := env.progress.GetStatus(ctx, model.JobKindClip, "job-1")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if view.Status != model.JobStatusProcessing || view.Progress != 45 || view.JobID != "job-1" {
			t.Errorf("unexpected view: %+v", view)
		}
	})

	t.Run("poll never lowers webhook progress", func(t *testing.T) {
		env := setupEnv(t)
		resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := env.clips.ApplyWebhook(ctx, resp.ClipID, &model.WorkerUpdate{Percent: model.IntPtr(80)}); err != nil {
			t.Fatalf("webhook: %v", err)
		}
		env.client.pollUpdate = &model.WorkerUpdate{Percent: model.IntPtr(50)}

		view, err := env.progress.GetStatus(ctx, model.JobKindClip, "job-1")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if view.Progress != 80 {
			t.Errorf("expected progress 80, got %d", view.Progress)
		}
	})

	t.Run("unavailable serves stored state", func(t *testing.T) {
		env := setupEnv(t)
		resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := env.clips.ApplyWebhook(ctx, resp.ClipID, &model.WorkerUpdate{Percent: model.IntPtr(30)}); err != nil {
			t.Fatalf("webhook: %v", err)
		}
		env.client.pollErr = &client.RemoteUnavailableError{JobID: "job-1", Err: errors.New("connection refused")}

		view, err := env.progress.GetStatus(ctx, model.JobKindClip, "job-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if view.Status != model.JobStatusProcessing || view.Progress != 30 || view.JobID != "job-1" {
			t.Errorf("unexpected view: %+v", view)
		}
	})

	t.Run("terminal skips poll", func(t *testing.T) {
		env := setupEnv(t)
		resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := env.clips.ApplyWebhook(ctx, resp.ClipID, &model.WorkerUpdate{Status: model.JobStatusFailed}); err != nil {
			t.Fatalf("webhook: %v", err)
		}

		view, err := env.progress.GetStatus(ctx, model.JobKindClip, "job-1")
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if view.Status != model.JobStatusFailed || view.Error != "Processing failed" {
			t.Errorf("unexpected view: %+v", view)
		}
		if env.client.polls != 0 {
			t.Errorf("expected no polls, got %d", env.client.polls)
		}
	})
}

func TestStreamCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := setupEnv(t)
		job, err := env.streams.Create(ctx, "user-1", &model.StreamCreateRequest{Title: "Derby", URL: "https://src.example.com/v"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if job.JobID != job.Stream.StreamID || len(job.Stream.StreamID) != 12 {
			t.Errorf("expected stream id as job id, got %q / %q", job.JobID, job.Stream.StreamID)
		}
		if job.Stream.Category != "others" || job.Stream.Language != "eng" {
			t.Errorf("unexpected defaults: %+v", job.Stream)
		}

		updated, err := env.streams.ApplyWebhook(ctx, job.Stream.StreamID, &model.WorkerUpdate{
			Status:       model.JobStatusCompleted,
			PublicHLSURL: "https://hls.example.com/x.m3u8",
		})
		if err != nil {
			t.Fatalf("webhook: %v", err)
		}
		if updated.Status != model.JobStatusCompleted || updated.Result.VideoURL != "https://hls.example.com/x.m3u8" {
			t.Errorf("unexpected record: %+v", updated)
		}
	})

	t.Run("submission failure keeps stream", func(t *testing.T) {
		env := setupEnv(t)
		env.client.submitErr = &client.RemoteSubmissionError{Message: "timeout"}

		job, err := env.streams.Create(ctx, "user-1", &model.StreamCreateRequest{Title: "Derby", URL: "https://src.example.com/v"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if job.Status != model.JobStatusFailed || job.ErrorMessage() != "timeout" {
			t.Errorf("expected failed/timeout, got %s/%q", job.Status, job.ErrorMessage())
		}

		list, err := env.streams.List(ctx, &model.StreamListQuery{OwnerID: "user-1"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if list.Pagination.Total != 1 {
			t.Errorf("expected 1 stream, got %d", list.Pagination.Total)
		}
	})
}

func TestStreamCreateDuplicateJobID(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.client.streamResp = &client.SubmitResponse{JobID: "dup", Status: "processing"}

	first, err := env.streams.Create(ctx, "user-1", &model.StreamCreateRequest{Title: "A", URL: "https://src.example.com/a"})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err = env.streams.Create(ctx, "user-1", &model.StreamCreateRequest{Title: "B", URL: "https://src.example.com/b"})
	if !errors.Is(err, store.ErrJobIDAssigned) {
		t.Fatalf("expected ErrJobIDAssigned, got %v", err)
	}

	list, err := env.streams.List(ctx, &model.StreamListQuery{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Pagination.Total != 2 {
		t.Fatalf("expected 2 streams, got %d", list.Pagination.Total)
	}
	for _, s := range list.Streams {
		switch s.RecordID {
		case first.RecordID:
			if s.Status != model.JobStatusProcessing || s.JobID != "dup" {
				t.Errorf("expected first stream processing with job id, got %s/%q", s.Status, s.JobID)
			}
		default:
			if s.Status != model.JobStatusFailed || s.JobID != "" {
				t.Errorf("expected second stream failed without job id, got %s/%q", s.Status, s.JobID)
			}
		}
	}
}

func TestClipGenerateAssignsDistinctJobIDs(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
		if err != nil {
			t.Fatalf("generate %d: %v", i+1, err)
		}
		if seen[resp.JobID] {
			t.Errorf("job id %s handed out twice", resp.JobID)
		}
		seen[resp.JobID] = true
	}
}

func TestGetWrongKind(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	resp, err := env.clips.Generate(ctx, "user-1", clipRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var nf *NotFoundError
	if _, err := env.streams.Get(ctx, resp.ClipID); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
