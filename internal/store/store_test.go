package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vidrelay/vidrelay/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func makeVideo(id string, createdAt time.Time) model.Video {
	ts := createdAt.UTC().Format(time.RFC3339)
	return model.Video{
		ID:              id,
		Title:           "Title " + id,
		PlaylistItemID:  "pli-" + id,
		DurationSeconds: 120,
		Stage:           model.StageDiscovered,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
}

func TestUpsertAndGetVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := makeVideo("vid-1", time.Now())

	if err := s.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("UpsertVideo: %v", err)
	}

	got, err := s.GetVideo(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got == nil {
		t.Fatal("GetVideo returned nil for existing video")
	}
	if got.ID != "vid-1" {
		t.Errorf("ID = %q, want %q", got.ID, "vid-1")
	}
	if got.Stage != model.StageDiscovered {
		t.Errorf("Stage = %q, want %q", got.Stage, model.StageDiscovered)
	}
	if got.PlaylistItemID != "pli-vid-1" {
		t.Errorf("PlaylistItemID = %q, want %q", got.PlaylistItemID, "pli-vid-1")
	}
	if got.Terminal {
		t.Error("Terminal = true, want false")
	}
}

func TestGetVideo_Absent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetVideo(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil for unknown video", got)
	}
}

func TestUpsertVideo_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	v := makeVideo("vid-1", time.Now())
	if err := s.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("UpsertVideo: %v", err)
	}

	v.Stage = model.StageDownloading
	v.MediaPath = "/tmp/vid-1.mp4"
	if err := s.UpsertVideo(ctx, v); err != nil {
		t.Fatalf("UpsertVideo (second): %v", err)
	}

	got, _ := s.GetVideo(ctx, "vid-1")
	if got.Stage != model.StageDownloading {
		t.Errorf("Stage = %q, want %q", got.Stage, model.StageDownloading)
	}
	if got.MediaPath != "/tmp/vid-1.mp4" {
		t.Errorf("MediaPath = %q, want %q", got.MediaPath, "/tmp/vid-1.mp4")
	}

	all, _ := s.ListByStage(ctx, model.StageDownloading)
	if len(all) != 1 {
		t.Errorf("rows after upsert = %d, want 1", len(all))
	}
}

func TestListByStage_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert newest first so insertion order cannot stand in for created_at.
	for i := 2; i >= 0; i-- {
		v := makeVideo("vid-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := s.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("UpsertVideo: %v", err)
		}
	}

	got, err := s.ListByStage(ctx, model.StageDiscovered)
	if err != nil {
		t.Fatalf("ListByStage: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"vid-a", "vid-b", "vid-c"} {
		if got[i].ID != want {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}

	other, _ := s.ListByStage(ctx, model.StagePublished)
	if len(other) != 0 {
		t.Errorf("published videos = %d, want 0", len(other))
	}
}

func TestListVideos_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, stage := range []string{model.StageDiscovered, model.StagePublished, model.StageDownloading} {
		v := makeVideo("vid-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		v.Stage = stage
		v.Terminal = stage == model.StagePublished
		if err := s.UpsertVideo(ctx, v); err != nil {
			t.Fatalf("UpsertVideo: %v", err)
		}
	}

	all, err := s.ListVideos(ctx, nil)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []string{"vid-c", "vid-b", "vid-a"} {
		if all[i].ID != want {
			t.Errorf("all[%d].ID = %q, want %q (newest first)", i, all[i].ID, want)
		}
	}

	some, err := s.ListVideos(ctx, []string{model.StagePublished, model.StageDownloading})
	if err != nil {
		t.Fatalf("ListVideos filtered: %v", err)
	}
	if len(some) != 2 {
		t.Fatalf("filtered len = %d, want 2", len(some))
	}
	if some[0].ID != "vid-c" || some[1].ID != "vid-b" {
		t.Errorf("filtered = [%s, %s], want [vid-c, vid-b]", some[0].ID, some[1].ID)
	}
}

func TestListActive_ExcludesTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	v1 := makeVideo("vid-1", base)
	s.UpsertVideo(ctx, v1)

	v2 := makeVideo("vid-2", base.Add(time.Minute))
	v2.Stage = model.StagePublished
	v2.Terminal = true
	s.UpsertVideo(ctx, v2)

	v3 := makeVideo("vid-3", base.Add(2*time.Minute))
	v3.Stage = model.StagePermanentlyFailed
	v3.Terminal = true
	s.UpsertVideo(ctx, v3)

	got, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("active = %d, want 1", len(got))
	}
	if got[0].ID != "vid-1" {
		t.Errorf("active[0].ID = %q, want vid-1", got[0].ID)
	}
}

func TestCountByStage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, stage := range []string{model.StageDiscovered, model.StageDiscovered, model.StagePublished} {
		v := makeVideo("vid-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		v.Stage = stage
		v.Terminal = stage == model.StagePublished
		s.UpsertVideo(ctx, v)
	}

	counts, err := s.CountByStage(ctx)
	if err != nil {
		t.Fatalf("CountByStage: %v", err)
	}
	if counts[model.StageDiscovered] != 2 {
		t.Errorf("discovered = %d, want 2", counts[model.StageDiscovered])
	}
	if counts[model.StagePublished] != 1 {
		t.Errorf("published = %d, want 1", counts[model.StagePublished])
	}
}

func TestAppendAttempt_Numbering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertVideo(ctx, makeVideo("vid-1", time.Now()))

	for want := 1; want <= 3; want++ {
		n, err := s.AppendAttempt(ctx, "vid-1", model.StepDownload)
		if err != nil {
			t.Fatalf("AppendAttempt #%d: %v", want, err)
		}
		if n != want {
			t.Errorf("attempt number = %d, want %d", n, want)
		}
		if err := s.CloseAttempt(ctx, "vid-1", model.StepDownload, n, model.OutcomeFailure, "network unreachable"); err != nil {
			t.Fatalf("CloseAttempt #%d: %v", want, err)
		}
	}

	attempts, err := s.ListAttempts(ctx, "vid-1", model.StepDownload)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.AttemptNumber != i+1 {
			t.Errorf("attempts[%d].AttemptNumber = %d, want %d", i, a.AttemptNumber, i+1)
		}
		if !a.Closed() {
			t.Errorf("attempts[%d] still open", i)
		}
	}
}

func TestAppendAttempt_BlocksWhileOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertVideo(ctx, makeVideo("vid-1", time.Now()))

	if _, err := s.AppendAttempt(ctx, "vid-1", model.StepTranscribe); err != nil {
		t.Fatalf("AppendAttempt: %v", err)
	}

	if _, err := s.AppendAttempt(ctx, "vid-1", model.StepTranscribe); err == nil {
		t.Fatal("expected error while prior attempt is open")
	}

	// A different step is independent.
	if _, err := s.AppendAttempt(ctx, "vid-1", model.StepDownload); err != nil {
		t.Errorf("AppendAttempt other step: %v", err)
	}
}

func TestCloseAttempt_NoOpenAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertVideo(ctx, makeVideo("vid-1", time.Now()))

	err := s.CloseAttempt(ctx, "vid-1", model.StepDownload, 1, model.OutcomeSuccess, "")
	if err == nil {
		t.Fatal("expected error when no attempt is open")
	}

	n, _ := s.AppendAttempt(ctx, "vid-1", model.StepDownload)
	if err := s.CloseAttempt(ctx, "vid-1", model.StepDownload, n, model.OutcomeSuccess, ""); err != nil {
		t.Fatalf("CloseAttempt: %v", err)
	}

	// Closing twice fails.
	if err := s.CloseAttempt(ctx, "vid-1", model.StepDownload, n, model.OutcomeSuccess, ""); err == nil {
		t.Fatal("expected error closing an already-closed attempt")
	}
}

func TestCloseDanglingAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertVideo(ctx, makeVideo("vid-1", time.Now()))

	if _, err := s.AppendAttempt(ctx, "vid-1", model.StepPublish); err != nil {
		t.Fatalf("AppendAttempt: %v", err)
	}

	n, err := s.CloseDanglingAttempts(ctx)
	if err != nil {
		t.Fatalf("CloseDanglingAttempts: %v", err)
	}
	if n != 1 {
		t.Errorf("closed = %d, want 1", n)
	}

	attempts, _ := s.ListAttempts(ctx, "vid-1", model.StepPublish)
	if len(attempts) != 1 || attempts[0].Outcome != model.OutcomeFailure {
		t.Fatalf("attempts = %+v, want one closed failure", attempts)
	}

	// The interrupted attempt keeps its number; the next one continues from it.
	next, err := s.AppendAttempt(ctx, "vid-1", model.StepPublish)
	if err != nil {
		t.Fatalf("AppendAttempt after recovery: %v", err)
	}
	if next != 2 {
		t.Errorf("next attempt = %d, want 2", next)
	}
}

func TestListVideoAttempts_AcrossSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertVideo(ctx, makeVideo("vid-1", time.Now()))

	n, _ := s.AppendAttempt(ctx, "vid-1", model.StepDownload)
	s.CloseAttempt(ctx, "vid-1", model.StepDownload, n, model.OutcomeSuccess, "")
	n, _ = s.AppendAttempt(ctx, "vid-1", model.StepTranscribe)
	s.CloseAttempt(ctx, "vid-1", model.StepTranscribe, n, model.OutcomeFailure, "tool exited with status 1")

	attempts, err := s.ListVideoAttempts(ctx, "vid-1")
	if err != nil {
		t.Fatalf("ListVideoAttempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].Step != model.StepDownload || attempts[1].Step != model.StepTranscribe {
		t.Errorf("steps = [%s, %s], want [download, transcribe]", attempts[0].Step, attempts[1].Step)
	}
	if attempts[1].ErrorDetail != "tool exited with status 1" {
		t.Errorf("ErrorDetail = %q", attempts[1].ErrorDetail)
	}
}

func TestMigration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := New(db); err != nil {
		t.Fatalf("New: %v", err)
	}

	// Verify schema version is at current.
	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}

	// Running New again should be idempotent.
	if _, err := New(db); err != nil {
		t.Fatalf("New (second time): %v", err)
	}
}
