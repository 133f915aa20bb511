package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gadgets/internal/models"
)

func decodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestGadgets_RequireLogin(t *testing.T) {
	app := newTestApp(t)

	rec := app.get("/gadgets", false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = app.get("/gadgets", true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated.", decodeJSON(t, rec.Body.Bytes())["message"])
}

func TestLogin_WrongPassword(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{"email": {app.user.Email}, "password": {"nope"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := app.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "These credentials do not match our records.")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.login()

	rec := app.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = app.get("/gadgets", false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rec := app.get("/health", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec.Body.Bytes())["ok"])
}

func TestIndex_JSON(t *testing.T) {
	app := newTestApp(t)
	app.login()
	for i, price := range []string{"30", "10", "20", "60", "50", "40"} {
		app.seed("Gadget "+strconv.Itoa(i), price, nil)
	}

	rec := app.get("/gadgets?sort_field=price&sort_direction=asc&page=2", true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec.Body.Bytes())
	model := body["model"].(map[string]any)
	data := model["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "60.00", data[0].(map[string]any)["price"])

	meta := model["meta"].(map[string]any)
	assert.Equal(t, float64(6), meta["total"])
	assert.Equal(t, float64(2), meta["last_page"])
	assert.Equal(t, float64(5), meta["per_page"])

	params := body["queryParams"].(map[string]any)
	assert.Equal(t, "price", params["sort_field"])
	assert.Equal(t, "asc", params["sort_direction"])
	assert.Equal(t, "2", params["page"])
}

func TestIndex_JSON_InvalidSortFallsBack(t *testing.T) {
	app := newTestApp(t)
	app.login()
	app.seed("First", "1", nil)
	app.seed("Second", "2", nil)

	rec := app.get("/gadgets?sort_field=password_hash&sort_direction=sideways", true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec.Body.Bytes())
	data := body["model"].(map[string]any)["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "Second", data[0].(map[string]any)["name"])
	assert.Equal(t, "created_at", body["queryParams"].(map[string]any)["sort_field"])
}

func TestIndex_HTML(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seedWithImage("Camera")

	rec := app.get("/gadgets?search=cam", false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Camera")
	assert.Contains(t, body, "/storage/gadgets/camera.png")
	assert.NotContains(t, body, `role="dialog"`)

	rec = app.get("/gadgets?dialog=view&id="+strconv.Itoa(int(g.ID)), false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="dialog"`)
	assert.Contains(t, rec.Body.String(), "admin@example.com")

	rec = app.get("/gadgets?dialog=delete&id="+strconv.Itoa(int(g.ID)), false)
	assert.Contains(t, rec.Body.String(), "Delete Camera?")

	rec = app.get("/gadgets?dialog=edit&id=999", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The gadget no longer exists.")
}

func TestStaticImages(t *testing.T) {
	app := newTestApp(t)
	app.seedWithImage("Phone")

	rec := app.get("/storage/gadgets/phone.png", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngData, rec.Body.Bytes())
}

func TestStore_HTML(t *testing.T) {
	app := newTestApp(t)
	app.login()

	ret := "search=&sort_field=name&sort_direction=asc&page=1"
	req := multipartRequest(t, "/gadgets", map[string]string{
		"name":       "Drone",
		"price":      "950",
		"created_by": strconv.Itoa(int(app.user.ID)),
		"_return":    ret,
	}, &filePart{name: "drone.png", data: pngData})
	rec := app.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/gadgets?page=1&sort_direction=asc&sort_field=name", rec.Header().Get("Location"))

	var g models.Gadget
	require.NoError(t, app.db.First(&g, "name = ?", "Drone").Error)
	require.True(t, g.HasImage())
	assert.True(t, strings.HasPrefix(g.ImageKey(), "gadgets/"))
	assert.True(t, app.fileExists(g.ImageKey()))

	rec = app.get(rec.Header().Get("Location"), false)
	assert.Contains(t, rec.Body.String(), "Successfully created a new gadget")

	rec = app.get("/gadgets", false)
	assert.NotContains(t, rec.Body.String(), "Successfully created a new gadget")
}

func TestStore_ValidationHTML(t *testing.T) {
	app := newTestApp(t)
	app.login()

	req := multipartRequest(t, "/gadgets", map[string]string{
		"name":       "",
		"price":      "-3",
		"created_by": strconv.Itoa(int(app.user.ID)),
	}, &filePart{name: "notes.txt", data: []byte("plain text")})
	rec := app.do(req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Create gadget")
	assert.Contains(t, body, "The name field is required.")
	assert.Contains(t, body, "The price field must be at least 0.")
	assert.Contains(t, body, "The image field must be a file of type: jpeg, png, jpg, gif.")
	assert.Contains(t, body, `value="-3"`)

	var count int64
	require.NoError(t, app.db.Model(&models.Gadget{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStore_JSON(t *testing.T) {
	app := newTestApp(t)
	app.login()

	t.Run("created", func(t *testing.T) {
		req := multipartRequest(t, "/gadgets", map[string]string{
			"name":        "Speaker",
			"description": "Loud",
			"price":       "80.5",
			"created_by":  strconv.Itoa(int(app.user.ID)),
		}, nil)
		req.Header.Set("Accept", "application/json")
		rec := app.do(req)

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeJSON(t, rec.Body.Bytes())
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Successfully created a new gadget", body["message"])
		g := body["gadget"].(map[string]any)
		assert.Equal(t, "80.50", g["price"])
		assert.Nil(t, g["image"])
		assert.Equal(t, "admin@example.com", g["createdBy"].(map[string]any)["email"])
	})

	t.Run("validation errors", func(t *testing.T) {
		req := multipartRequest(t, "/gadgets", map[string]string{"price": "abc", "created_by": "999"}, nil)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		rec := app.do(req)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		errs := decodeJSON(t, rec.Body.Bytes())["errors"].(map[string]any)
		assert.Equal(t, []any{"The name field is required."}, errs["name"])
		assert.Equal(t, []any{"The price field must be a number."}, errs["price"])
		assert.Equal(t, []any{"The selected created by is invalid."}, errs["created_by"])
	})
}

func TestUpdate_KeepsImageWithoutFile(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seedWithImage("Phone")

	req := multipartRequest(t, "/gadgets/"+strconv.Itoa(int(g.ID)), map[string]string{
		"_method":    "PATCH",
		"name":       "Phone X",
		"price":      "11",
		"created_by": strconv.Itoa(int(app.user.ID)),
	}, nil)
	req.Header.Set("Accept", "application/json")
	rec := app.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "Gadget updated successfully.", body["message"])
	gj := body["gadget"].(map[string]any)
	assert.Equal(t, "Phone X", gj["name"])
	assert.Equal(t, "gadgets/phone.png", gj["image"])
	assert.True(t, app.fileExists("gadgets/phone.png"))
}

func TestUpdate_ReplacesImage(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seedWithImage("Phone")

	req := multipartRequest(t, "/gadgets/"+strconv.Itoa(int(g.ID)), map[string]string{
		"name":       "Phone",
		"price":      "10",
		"created_by": strconv.Itoa(int(app.user.ID)),
	}, &filePart{name: "new.png", data: pngData})
	req.Header.Set("X-HTTP-Method-Override", "PATCH")
	rec := app.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)

	var stored models.Gadget
	require.NoError(t, app.db.First(&stored, g.ID).Error)
	assert.NotEqual(t, "gadgets/phone.png", stored.ImageKey())
	assert.True(t, app.fileExists(stored.ImageKey()))
	assert.False(t, app.fileExists("gadgets/phone.png"))
}

func TestUpdate_NativePatchAnswersJSON(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seed("Phone", "10", nil)

	req := multipartRequest(t, "/gadgets/"+strconv.Itoa(int(g.ID)), map[string]string{
		"name":       "Phone Y",
		"price":      "12",
		"created_by": strconv.Itoa(int(app.user.ID)),
	}, nil)
	req.Method = http.MethodPatch
	rec := app.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Gadget updated successfully.", body["message"])
	assert.Equal(t, "Phone Y", body["gadget"].(map[string]any)["name"])

	req = httptest.NewRequest(http.MethodDelete, "/gadgets/9999", nil)
	rec = app.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeJSON(t, rec.Body.Bytes())["message"])
}

func TestUpdate_ValidationReopensEditDialog(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seed("Phone", "10", nil)

	req := multipartRequest(t, "/gadgets/"+strconv.Itoa(int(g.ID)), map[string]string{
		"_method":    "PATCH",
		"name":       strings.Repeat("n", 300),
		"price":      "10",
		"created_by": strconv.Itoa(int(app.user.ID)),
	}, nil)
	rec := app.do(req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Edit Phone")
	assert.Contains(t, rec.Body.String(), "The name field must not be greater than 255 characters.")
}

func TestUpdate_UnknownID(t *testing.T) {
	app := newTestApp(t)
	app.login()

	req := multipartRequest(t, "/gadgets/4242", map[string]string{
		"_method":    "PATCH",
		"name":       "x",
		"price":      "1",
		"created_by": strconv.Itoa(int(app.user.ID)),
	}, nil)
	req.Header.Set("Accept", "application/json")
	rec := app.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = multipartRequest(t, "/gadgets/abc", map[string]string{"_method": "PATCH"}, nil)
	req.Header.Set("Accept", "application/json")
	rec = app.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDestroy(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seedWithImage("Watch")
	target := "/gadgets/" + strconv.Itoa(int(g.ID))

	form := url.Values{"_method": {"DELETE"}, "_return": {"search=wat&page=1"}}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := app.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/gadgets?page=1&search=wat&sort_direction=desc&sort_field=created_at", rec.Header().Get("Location"))
	assert.False(t, app.fileExists("gadgets/watch.png"))

	rec = app.get(rec.Header().Get("Location"), false)
	assert.Contains(t, rec.Body.String(), "Successfully deleted gadget")

	req = httptest.NewRequest(http.MethodDelete, target, nil)
	req.Header.Set("Accept", "application/json")
	rec = app.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDestroy_JSON(t *testing.T) {
	app := newTestApp(t)
	app.login()
	g := app.seed("Tablet", "5", nil)

	req := httptest.NewRequest(http.MethodDelete, "/gadgets/"+strconv.Itoa(int(g.ID)), nil)
	req.Header.Set("Accept", "application/json")
	rec := app.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Successfully deleted gadget", body["message"])
}
