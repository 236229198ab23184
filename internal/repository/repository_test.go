package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"eco-moderation/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "eco.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := MigrateDB(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedAudio(t *testing.T, repo AudioRepository, id string) {
	t.Helper()
	err := repo.Create(context.Background(), &models.AudioRecord{
		ID:      id,
		FileURL: "https://x/audio.mp3",
		Title:   models.StringPtr("Paseo por el Retiro"),
	})
	if err != nil {
		t.Fatalf("seed audio: %v", err)
	}
}

func TestMigrateDBIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	if err := MigrateDB(db, zap.NewNop()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAudioRepositoryGetByID(t *testing.T) {
	repo := NewAudioRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()
	seedAudio(t, repo, "abc123")

	audio, err := repo.GetByID(ctx, "abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if audio.CurrentStatus() != models.StatusPending || audio.TitleOr("") != "Paseo por el Retiro" {
		t.Fatalf("unexpected record %+v", audio)
	}
	if audio.Author != nil || audio.Transcript != nil || audio.ModerationReason != nil {
		t.Fatalf("optional columns should be NULL: %+v", audio)
	}
	if audio.CreatedAt.IsZero() {
		t.Fatalf("created_at was not populated")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrAudioNotFound) {
		t.Fatalf("expected ErrAudioNotFound, got %v", err)
	}
}

func TestApplyVerdictTransitionsOnlyOnce(t *testing.T) {
	repo := NewAudioRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()
	seedAudio(t, repo, "abc123")

	applied, err := repo.ApplyVerdict(ctx, "abc123", models.StatusFlagged, models.StringPtr("violencia explícita"), models.StringPtr("texto"))
	if err != nil || !applied {
		t.Fatalf("first verdict must apply, applied=%v err=%v", applied, err)
	}

	applied, err = repo.ApplyVerdict(ctx, "abc123", models.StatusSafe, nil, models.StringPtr("otro"))
	if err != nil {
		t.Fatalf("second verdict: %v", err)
	}
	if applied {
		t.Fatalf("a non-pending record must not transition again")
	}

	audio, _ := repo.GetByID(ctx, "abc123")
	if audio.ModerationStatus != models.StatusFlagged || *audio.ModerationReason != "violencia explícita" || *audio.Transcript != "texto" {
		t.Fatalf("first verdict was overwritten: %+v", audio)
	}

	if _, err := repo.ApplyVerdict(ctx, "abc123", models.StatusPending, nil, nil); err == nil {
		t.Fatalf("pending is not a verdict")
	}

	applied, _ = repo.ApplyVerdict(ctx, "missing", models.StatusSafe, nil, nil)
	if applied {
		t.Fatalf("missing record cannot transition")
	}
}

func TestCacheTranscriptOnlyWhilePending(t *testing.T) {
	repo := NewAudioRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()
	seedAudio(t, repo, "abc123")

	if err := repo.CacheTranscript(ctx, "abc123", "hola"); err != nil {
		t.Fatalf("cache: %v", err)
	}
	audio, _ := repo.GetByID(ctx, "abc123")
	if audio.Transcript == nil || *audio.Transcript != "hola" || audio.ModerationStatus != models.StatusPending {
		t.Fatalf("unexpected record after cache: %+v", audio)
	}

	repo.ApplyVerdict(ctx, "abc123", models.StatusSafe, nil, models.StringPtr("final"))
	repo.CacheTranscript(ctx, "abc123", "late")

	audio, _ = repo.GetByID(ctx, "abc123")
	if *audio.Transcript != "final" {
		t.Fatalf("cache must not touch decided records, got %q", *audio.Transcript)
	}
}

func TestMarkSafeAndDelete(t *testing.T) {
	repo := NewAudioRepository(newTestDB(t), zap.NewNop())
	ctx := context.Background()
	seedAudio(t, repo, "abc123")
	repo.ApplyVerdict(ctx, "abc123", models.StatusFlagged, models.StringPtr("odio"), nil)

	for i := 0; i < 2; i++ {
		found, err := repo.MarkSafe(ctx, "abc123")
		if err != nil || !found {
			t.Fatalf("mark safe #%d: found=%v err=%v", i+1, found, err)
		}
	}
	audio, _ := repo.GetByID(ctx, "abc123")
	if audio.ModerationStatus != models.StatusSafe {
		t.Fatalf("expected safe, got %s", audio.ModerationStatus)
	}

	deleted, err := repo.Delete(ctx, "abc123")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, _ = repo.Delete(ctx, "abc123")
	if deleted {
		t.Fatalf("second delete must report nothing deleted")
	}
	if found, _ := repo.MarkSafe(ctx, "abc123"); found {
		t.Fatalf("mark safe on a deleted record must report not found")
	}
}

func TestModerationLogRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewModerationLogRepository(db, zap.NewNop())
	ctx := context.Background()

	first := models.NewModerationLog("abc123", models.LogActionVerdict, models.StatusFlagged, models.StringPtr("odio"), models.ActorPipeline)
	second := models.NewModerationLog("abc123", models.LogActionKeep, models.StatusSafe, nil, models.ActorAdminLink)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := models.NewModerationLog("zzz", models.LogActionDelete, models.StatusFlagged, nil, models.ActorAdminLink)

	for _, e := range []*models.ModerationLog{second, first, other} {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := repo.ListByAudio(ctx, "abc123")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != first.ID || entries[1].Action != models.LogActionKeep {
		t.Fatalf("entries out of order: %+v %+v", entries[0], entries[1])
	}
	if entries[0].Reason == nil || *entries[0].Reason != "odio" || entries[1].Reason != nil {
		t.Fatalf("reasons not preserved")
	}
}

func TestInflightLock(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	lock := NewInflightLock(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "abc123")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, _ := lock.Acquire(ctx, "abc123"); ok {
		t.Fatalf("second acquire must fail while held")
	}
	if _, ok, _ := lock.Acquire(ctx, "other"); !ok {
		t.Fatalf("other records must not be blocked")
	}

	release()
	release2, ok, _ := lock.Acquire(ctx, "abc123")
	if !ok {
		t.Fatalf("acquire after release must succeed")
	}

	// a stale release from the first holder must not drop the new lease
	release()
	if _, ok, _ := lock.Acquire(ctx, "abc123"); ok {
		t.Fatalf("stale release dropped someone else's lock")
	}
	release2()

	_, ok, _ = lock.Acquire(ctx, "ttl")
	mr.FastForward(2 * time.Minute)
	if _, ok2, _ := lock.Acquire(ctx, "ttl"); !ok || !ok2 {
		t.Fatalf("lock must expire with its ttl")
	}
}
