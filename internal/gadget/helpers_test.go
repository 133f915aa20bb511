package gadget

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"gadgets/internal/config"
	"gadgets/internal/db"
	"gadgets/internal/models"
	"gadgets/internal/storage"
)

var (
	pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	gifData = []byte("GIF89a\x01\x00\x01\x00")
)

// memStore is an in-memory storage.Storage with injectable failures.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("short write")
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) URL(key string) string {
	return "/storage/" + key
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

func newTestService(t *testing.T) (*Service, *memStore, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	store := newMemStore()
	return NewService(gdb, store, zaptest.NewLogger(t)), store, gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "Admin " + email, Email: email, PasswordHash: "x"}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

func seedGadget(t *testing.T, gdb *gorm.DB, user *models.User, name, description, price string) *models.Gadget {
	t.Helper()
	g := &models.Gadget{Name: name, Price: decimal.RequireFromString(price), CreatedByID: user.ID}
	if description != "" {
		g.Description = &description
	}
	require.NoError(t, gdb.Omit("CreatedBy").Create(g).Error)
	return g
}
