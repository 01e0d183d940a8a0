package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", errors.New("stepping: SQLITE_BUSY"), true},
		{"locked", errors.New("database is locked (5)"), true},
		{"other", errors.New("no such table: sessions"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteConflictError(tt.err); got != tt.want {
				t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetrySQLiteRecovers(t *testing.T) {
	calls := 0
	err := RetrySQLite(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetrySQLite failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrySQLiteStopsOnOtherError(t *testing.T) {
	calls := 0
	wantErr := errors.New("no such table")
	err := RetrySQLite(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable error", calls)
	}
}

func TestRetrySQLiteExhausts(t *testing.T) {
	calls := 0
	err := RetrySQLite(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil {
		t.Fatal("RetrySQLite swallowed the final error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
