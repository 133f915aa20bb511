package web

import (
	"errors"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"gadgets/internal/gadget"
	"gadgets/internal/logger"
)

const (
	msgCreated      = "Successfully created a new gadget"
	msgUpdated      = "Gadget updated successfully."
	msgDeleted      = "Successfully deleted gadget"
	msgStoreFailed  = "The image could not be stored."
	msgRemoveFailed = "The image could not be removed."
	msgGone         = "The gadget no longer exists."
	msgInvalid      = "The given data was invalid."
	serverErrorText = "Server Error"
)

// GadgetHandler serves /gadgets.
type GadgetHandler struct {
	svc   *gadget.Service
	views *template.Template
}

// wantsJSON reports whether the response should be JSON: the client asked
// for it, or sent a native PATCH, PUT or DELETE. Forms tunneled through
// _method get HTML.
func wantsJSON(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "application/json") ||
		c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	switch c.Request.Method {
	case http.MethodPatch, http.MethodPut, http.MethodDelete:
		return !isTunneled(c.Request)
	}
	return false
}

// Index lists gadgets. Pages may open a dialog with ?dialog=create|view|edit|delete&id=N.
func (h *GadgetHandler) Index(c *gin.Context) {
	q := ParsePageQuery(c.Request.URL.Query())

	if wantsJSON(c) {
		page, err := h.svc.List(c.Request.Context(), q.ListQuery())
		if err != nil {
			h.fail(c, err, q, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"model":       gadget.NewCollection(page, h.svc.Storage(), gadgetsPath, q.Values()),
			"queryParams": q.Params(),
		})
		return
	}

	var notice string
	dialog, err := openDialog(c.Request.Context(), h.svc, c.Query("dialog"), c.Query("id"), currentUser(c))
	if err != nil {
		var nf *gadget.NotFoundError
		if !errors.As(err, &nf) {
			h.fail(c, err, q, nil)
			return
		}
		notice = msgGone
	}
	h.renderIndex(c, http.StatusOK, q, dialog, notice)
}

// Store creates a gadget from a multipart form.
func (h *GadgetHandler) Store(c *gin.Context) {
	q := parseReturn(c.PostForm("_return"))

	in, err := bindInput(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	g, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, q, func(verr *gadget.ValidationError) Dialog {
			return Creating{Form: formFromInput(in), Errors: verr}
		})
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": msgCreated,
			"gadget":  gadget.NewResource(g, h.svc.Storage()),
		})
		return
	}
	addFlash(c, msgCreated)
	c.Redirect(http.StatusSeeOther, q.URL())
}

// Update replaces a gadget. Without a new file the stored image is kept.
func (h *GadgetHandler) Update(c *gin.Context) {
	q := parseReturn(c.PostForm("_return"))

	id, ok := parseID(c)
	if !ok {
		h.fail(c, &gadget.NotFoundError{}, q, nil)
		return
	}

	in, err := bindInput(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	g, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err, q, func(verr *gadget.ValidationError) Dialog {
			current, err := h.svc.Get(c.Request.Context(), id)
			if err != nil {
				return Closed{}
			}
			return Editing{Gadget: gadget.NewResource(current, h.svc.Storage()), Form: formFromInput(in), Errors: verr}
		})
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": msgUpdated,
			"gadget":  gadget.NewResource(g, h.svc.Storage()),
		})
		return
	}
	addFlash(c, msgUpdated)
	c.Redirect(http.StatusSeeOther, q.URL())
}

// Destroy deletes a gadget and its image.
func (h *GadgetHandler) Destroy(c *gin.Context) {
	q := parseReturn(c.PostForm("_return"))

	id, ok := parseID(c)
	if !ok {
		h.fail(c, &gadget.NotFoundError{}, q, nil)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, q, func(*gadget.ValidationError) Dialog {
			current, err := h.svc.Get(c.Request.Context(), id)
			if err != nil {
				return Closed{}
			}
			return ConfirmingDelete{Gadget: gadget.NewResource(current, h.svc.Storage())}
		})
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": msgDeleted})
		return
	}
	addFlash(c, msgDeleted)
	c.Redirect(http.StatusSeeOther, q.URL())
}

// fail maps service errors to responses. reopen rebuilds the dialog the
// request came from; nil keeps the page closed.
func (h *GadgetHandler) fail(c *gin.Context, err error, q PageQuery, reopen func(*gadget.ValidationError) Dialog) {
	log := logger.GetGinLogger(c)

	dialog := func(verr *gadget.ValidationError) Dialog {
		if reopen == nil {
			return Closed{}
		}
		return reopen(verr)
	}

	var (
		verr *gadget.ValidationError
		nf   *gadget.NotFoundError
		se   *gadget.StorageError
	)
	switch {
	case errors.As(err, &verr):
		if wantsJSON(c) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": msgInvalid, "errors": verr.Fields})
			return
		}
		h.renderIndex(c, http.StatusUnprocessableEntity, q, dialog(verr), "")

	case errors.As(err, &nf):
		if wantsJSON(c) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
			return
		}
		h.renderIndex(c, http.StatusNotFound, q, Closed{}, msgGone)

	case errors.As(err, &se):
		log.Error("gadget storage failure", zap.String("op", se.Op), zap.String("key", se.Key), zap.Error(se.Err))
		msg := msgStoreFailed
		if se.Op == "delete" {
			msg = msgRemoveFailed
		}
		if wantsJSON(c) {
			c.JSON(http.StatusInternalServerError, gin.H{"message": msg})
			return
		}
		h.renderIndex(c, http.StatusInternalServerError, q, dialog(nil), msg)

	default:
		log.Error("gadget request failed", zap.Error(err))
		_ = c.Error(err)
		if wantsJSON(c) {
			c.JSON(http.StatusInternalServerError, gin.H{"message": serverErrorText})
			return
		}
		c.HTML(http.StatusInternalServerError, "error", gin.H{"Message": serverErrorText})
	}
}

func (h *GadgetHandler) badRequest(c *gin.Context, err error) {
	logger.GetGinLogger(c).Warn("malformed gadget form", zap.Error(err))
	if wantsJSON(c) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Bad Request"})
		return
	}
	c.HTML(http.StatusBadRequest, "error", gin.H{"Message": "Bad Request"})
}

// renderIndex renders the list page with dialog open.
func (h *GadgetHandler) renderIndex(c *gin.Context, status int, q PageQuery, dialog Dialog, notice string) {
	ctx := c.Request.Context()
	log := logger.GetGinLogger(c)

	page, err := h.svc.List(ctx, q.ListQuery())
	if err != nil {
		log.Error("list gadgets", zap.Error(err))
		c.HTML(http.StatusInternalServerError, "error", gin.H{"Message": serverErrorText})
		return
	}

	user := currentUser(c)
	dialogHTML, err := renderDialog(h.views, dialog, q, user)
	if err != nil {
		log.Error("render dialog", zap.Error(err))
		c.HTML(http.StatusInternalServerError, "error", gin.H{"Message": serverErrorText})
		return
	}

	c.HTML(status, "gadgets_index", gin.H{
		"Model":   gadget.NewCollection(page, h.svc.Storage(), gadgetsPath, q.Values()),
		"Query":   q,
		"Dialog":  dialogHTML,
		"Flashes": popFlashes(c),
		"Notice":  notice,
		"User":    user,
	})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// bindInput reads the text fields and decodes the image field.
func bindInput(c *gin.Context) (gadget.Input, error) {
	var in gadget.Input
	if err := c.ShouldBindWith(&in, binding.Form); err != nil {
		return in, err
	}
	img, err := decodeImage(c)
	if err != nil {
		return in, err
	}
	in.Image = img
	return in, nil
}

// decodeImage turns the image field into NewFile (an uploaded file),
// ExistingPath (a non-empty text value) or Absent.
func decodeImage(c *gin.Context) (gadget.Image, error) {
	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		return readUpload(fh)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return nil, err
	}

	if path := strings.TrimSpace(c.PostForm("image")); path != "" {
		return gadget.ExistingPath{Path: path}, nil
	}
	return gadget.Absent{}, nil
}

func readUpload(fh *multipart.FileHeader) (gadget.Image, error) {
	f := gadget.NewFile{Name: fh.Filename, Size: fh.Size}
	if fh.Size > gadget.MaxImageSize {
		return f, nil
	}

	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f.Data, err = io.ReadAll(io.LimitReader(file, gadget.MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	f.Size = int64(len(f.Data))
	return f, nil
}
