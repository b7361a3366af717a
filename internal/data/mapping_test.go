package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

func newTestMappingRepo(t *testing.T, opts ...MappingOption) *mappingRepo {
	t.Helper()
	r, err := openMappingRepo(filepath.Join(t.TempDir(), "data", "messages.db"), zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("openMappingRepo: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func mapping(orig, dest, destID string, created time.Time) domain.MessageMapping {
	return domain.MessageMapping{
		SourceChatID:         "oc_src",
		SourceMessageID:      orig,
		DestinationChatID:    dest,
		DestinationMessageID: destID,
		CreatedAt:            created,
	}
}

func TestMappingRepo_PutGet(t *testing.T) {
	r := newTestMappingRepo(t)
	ctx := context.Background()

	if err := r.Put(ctx, mapping("om_1", "oc_a", "om_a1", time.Now())); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := r.Get(ctx, "oc_src", "om_1", "oc_a")
	if err != nil || !ok || got != "om_a1" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if _, ok, err := r.Get(ctx, "oc_src", "om_1", "oc_b"); err != nil || ok {
		t.Errorf("Get other destination = %v, %v", ok, err)
	}
	if _, ok, err := r.Get(ctx, "oc_src", "om_missing", "oc_a"); err != nil || ok {
		t.Errorf("Get missing = %v, %v", ok, err)
	}
}

func TestMappingRepo_PutOverwrites(t *testing.T) {
	r := newTestMappingRepo(t)
	ctx := context.Background()

	r.Put(ctx, mapping("om_1", "oc_a", "om_first", time.Now()))
	r.Put(ctx, mapping("om_1", "oc_a", "om_second", time.Now()))

	got, _, _ := r.Get(ctx, "oc_src", "om_1", "oc_a")
	if got != "om_second" {
		t.Errorf("Get = %q, want om_second", got)
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestMappingRepo_LookupAndDelete(t *testing.T) {
	r := newTestMappingRepo(t)
	ctx := context.Background()

	r.Put(ctx, mapping("om_1", "oc_a", "om_a1", time.Now()))
	r.Put(ctx, mapping("om_1", "oc_b", "om_b1", time.Now()))
	r.Put(ctx, mapping("om_2", "oc_a", "om_a2", time.Now()))

	rows, err := r.Lookup(ctx, "oc_src", "om_1")
	if err != nil || len(rows) != 2 {
		t.Fatalf("Lookup = %d rows, %v", len(rows), err)
	}
	if rows[0].DestinationChatID != "oc_a" || rows[1].DestinationChatID != "oc_b" {
		t.Errorf("Lookup order = %+v", rows)
	}

	if err := r.Delete(ctx, "oc_src", "om_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if rows, _ := r.Lookup(ctx, "oc_src", "om_1"); len(rows) != 0 {
		t.Errorf("rows after delete = %d", len(rows))
	}
	if _, ok, _ := r.Get(ctx, "oc_src", "om_2", "oc_a"); !ok {
		t.Error("unrelated mapping removed")
	}

	// Deleting an absent key is a no-op
	if err := r.Delete(ctx, "oc_src", "om_missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMappingRepo_Maintenance(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestMappingRepo(t, WithMappingClock(func() time.Time { return now }))
	ctx := context.Background()

	r.Put(ctx, mapping("om_old", "oc_a", "x1", now.Add(-31*24*time.Hour)))
	r.Put(ctx, mapping("om_edge", "oc_a", "x2", now.Add(-29*24*time.Hour)))
	r.Put(ctx, mapping("om_new", "oc_a", "x3", now.Add(-time.Hour)))

	report, err := r.Maintenance(ctx)
	if err != nil {
		t.Fatalf("Maintenance: %v", err)
	}
	if report.Before != 3 || report.After != 2 || report.Removed() != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, ok, _ := r.Get(ctx, "oc_src", "om_old", "oc_a"); ok {
		t.Error("expired row survived")
	}
	for _, id := range []string{"om_edge", "om_new"} {
		if _, ok, _ := r.Get(ctx, "oc_src", id, "oc_a"); !ok {
			t.Errorf("%s reaped before retention", id)
		}
	}
}

func TestMappingRepo_MaintenanceAtConstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	now := time.Now()

	r, err := openMappingRepo(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.Put(context.Background(), mapping("om_old", "oc_a", "x1", now.Add(-40*24*time.Hour)))
	r.Close()

	reopened, err := NewMappingRepo(context.Background(), path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if n, _ := reopened.Count(context.Background()); n != 0 {
		t.Errorf("Count after startup maintenance = %d, want 0", n)
	}
}

func TestMappingRepo_Concurrent(t *testing.T) {
	r := newTestMappingRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- r.Put(ctx, mapping(fmt.Sprintf("om_%d", i), "oc_a", fmt.Sprintf("d_%d", i), time.Now()))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := r.Lookup(ctx, "oc_src", fmt.Sprintf("om_%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent op: %v", err)
		}
	}
	if n, _ := r.Count(ctx); n != 20 {
		t.Errorf("Count = %d, want 20", n)
	}
}

func TestMappingRepo_Closed(t *testing.T) {
	r := newTestMappingRepo(t)
	r.Close()

	err := r.Put(context.Background(), mapping("om_1", "oc_a", "x", time.Now()))
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Put after close = %v, want StoreError", err)
	}
	if se.Attempts != 1 {
		t.Errorf("closed store retried %d times", se.Attempts)
	}
}

func TestMappingRepo_ReconnectReplacesOnlyFailedHandle(t *testing.T) {
	r := newTestMappingRepo(t)
	ctx := context.Background()
	first := r.db

	if err := r.reconnect(first); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	second := r.db
	if second == first {
		t.Fatal("handle not replaced")
	}
	if err := first.PingContext(ctx); err == nil {
		t.Error("failed handle left open")
	}

	// A late reconnect for the old handle must not close the fresh one
	if err := r.reconnect(first); err != nil {
		t.Fatalf("stale reconnect: %v", err)
	}
	if r.db != second {
		t.Error("stale reconnect swapped the handle")
	}
	if err := second.PingContext(ctx); err != nil {
		t.Errorf("fresh handle closed: %v", err)
	}
	if err := r.Put(ctx, mapping("om_1", "oc_a", "d_1", time.Now())); err != nil {
		t.Errorf("Put after reconnect: %v", err)
	}
}

// An operation whose handle was swapped by a concurrent reconnect retries on
// the new handle without replacing it again.
func TestMappingRepo_RetryAfterConcurrentReconnect(t *testing.T) {
	r := newTestMappingRepo(t, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Retryable: isLockError}))
	ctx := context.Background()

	var handles []*sql.DB
	var swapped *sql.DB
	err := r.do(ctx, "test", func(ctx context.Context, db *sql.DB) error {
		handles = append(handles, db)
		if len(handles) == 1 {
			if err := r.reconnect(db); err != nil {
				return err
			}
			swapped = r.db
			return errors.New("sql: database is closed")
		}
		return db.PingContext(ctx)
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("attempts = %d, want 2", len(handles))
	}
	if handles[1] != swapped || r.db != swapped {
		t.Error("retry did not run on the concurrently swapped handle")
	}
}

func TestIsLockError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{fmt.Errorf("failed to save mapping: %w", errors.New("database is locked (5) (SQLITE_BUSY)")), true},
		{errors.New("sql: database is closed"), true},
		{errStoreClosed, false},
		{sql.ErrNoRows, false},
		{errors.New("constraint failed"), false},
	}

	for _, tt := range tests {
		if got := isLockError(tt.err); got != tt.want {
			t.Errorf("isLockError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
