package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// setupFileDB opens a file-backed sqlite database so concurrent callers share
// one store.
func setupFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "medexam.db")})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

// fakeHIS records calls and answers with the configured funcs. Without a
// func it reports that no visit is open.
type fakeHIS struct {
	mu           sync.Mutex
	sessionCalls int
	updates      []his.MedicalPayload
	visitIDs     []string
	sessionFunc  func() (*his.SessionResult, error)
	updateFunc   func(visitID string) (*his.UpdateResult, error)
}

func (f *fakeHIS) GetCurrentSession(ctx context.Context, forceRefresh bool) (*his.SessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	if f.sessionFunc == nil {
		return &his.SessionResult{Success: false, Error: "no open visit"}, nil
	}
	return f.sessionFunc()
}

func (f *fakeHIS) UpdateVisit(ctx context.Context, visitID string, payload his.MedicalPayload) (*his.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visitIDs = append(f.visitIDs, visitID)
	f.updates = append(f.updates, payload)
	if f.updateFunc == nil {
		return &his.UpdateResult{Success: true}, nil
	}
	return f.updateFunc(visitID)
}

func strPtr(s string) *string {
	return &s
}
