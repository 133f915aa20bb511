package web

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"gadgets/internal/config"
	"gadgets/internal/db"
	"gadgets/internal/gadget"
	"gadgets/internal/models"
	"gadgets/internal/storage"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	t       *testing.T
	handler http.Handler
	db      *gorm.DB
	root    string
	user    *models.User
	cookies map[string]*http.Cookie
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zaptest.NewLogger(t)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"},
		Session:  config.SessionConfig{Secret: "test-secret"},
	}
	cfg.Storage.Local.Root = t.TempDir()
	cfg.Storage.Local.PublicURL = "/storage"
	cfg.HTTP.MaxBodySize = 4 << 20

	gdb, err := db.Open(cfg.Database, log)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	store, err := storage.NewLocal(cfg.Storage.Local.Root, cfg.Storage.Local.PublicURL)
	require.NoError(t, err)

	hash, err := models.HashPassword("secret123")
	require.NoError(t, err)
	user := &models.User{Name: "Admin", Email: "admin@example.com", PasswordHash: hash}
	require.NoError(t, gdb.Create(user).Error)

	cfg.Session.Name = "gadgets_session"
	srv, err := New(cfg, gdb, gadget.NewService(gdb, store, log), log)
	require.NoError(t, err)

	return &testApp{
		t:       t,
		handler: srv.Handler(),
		db:      gdb,
		root:    cfg.Storage.Local.Root,
		user:    user,
		cookies: map[string]*http.Cookie{},
	}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		a.cookies[c.Name] = c
	}
	return rec
}

func (a *testApp) login() {
	a.t.Helper()
	form := url.Values{"email": {a.user.Email}, "password": {"secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := a.do(req)
	require.Equal(a.t, http.StatusSeeOther, rec.Code)
	require.Equal(a.t, "/gadgets", rec.Header().Get("Location"))
}

func (a *testApp) get(target string, asJSON bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	return a.do(req)
}

func (a *testApp) seed(name, price string, image *string) *models.Gadget {
	a.t.Helper()
	g := &models.Gadget{Name: name, Price: decimal.RequireFromString(price), CreatedByID: a.user.ID, Image: image}
	require.NoError(a.t, a.db.Omit("CreatedBy").Create(g).Error)
	return g
}

func (a *testApp) seedWithImage(name string) *models.Gadget {
	a.t.Helper()
	key := "gadgets/" + strings.ToLower(name) + ".png"
	path := filepath.Join(a.root, "gadgets", strings.ToLower(name)+".png")
	require.NoError(a.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(a.t, os.WriteFile(path, pngData, 0o644))
	return a.seed(name, "10", &key)
}

func (a *testApp) fileExists(key string) bool {
	_, err := os.Stat(filepath.Join(a.root, filepath.FromSlash(key)))
	return err == nil
}

type filePart struct {
	name string
	data []byte
}

// multipartRequest builds a POST with the given fields and optional image file.
func multipartRequest(t *testing.T, target string, fields map[string]string, file *filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile("image", file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
