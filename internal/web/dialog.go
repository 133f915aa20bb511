package web

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"

	"gadgets/internal/gadget"
	"gadgets/internal/models"
)

// Dialog is the modal currently open on the gadgets page. Exactly one is
// active: Closed, Creating, Viewing, Editing or ConfirmingDelete.
type Dialog interface {
	isDialog()
}

type Closed struct{}

// Creating is the new-gadget form, with errors from a rejected submit.
type Creating struct {
	Form   FormValues
	Errors *gadget.ValidationError
}

type Viewing struct {
	Gadget gadget.Resource
}

// Editing is the edit form for Gadget. Form holds the submitted values after
// a rejected submit, otherwise the stored ones.
type Editing struct {
	Gadget gadget.Resource
	Form   FormValues
	Errors *gadget.ValidationError
}

type ConfirmingDelete struct {
	Gadget gadget.Resource
}

func (Closed) isDialog()           {}
func (Creating) isDialog()         {}
func (Viewing) isDialog()          {}
func (Editing) isDialog()          {}
func (ConfirmingDelete) isDialog() {}

// FormValues are the text inputs of the create and edit forms.
type FormValues struct {
	Name        string
	Description string
	Price       string
	CreatedBy   string
}

func formFromInput(in gadget.Input) FormValues {
	return FormValues{Name: in.Name, Description: in.Description, Price: in.Price, CreatedBy: in.CreatedBy}
}

func formFromResource(r gadget.Resource) FormValues {
	f := FormValues{Name: r.Name, Price: r.Price, CreatedBy: strconv.FormatUint(uint64(r.CreatedBy.ID), 10)}
	if r.Description != nil {
		f.Description = *r.Description
	}
	return f
}

// dialogView is the data passed to a dialog template.
type dialogView struct {
	Dialog Dialog
	Query  PageQuery
	Return string
	UserID uint
}

// renderDialog executes the template of d. Closed renders nothing.
func renderDialog(t *template.Template, d Dialog, q PageQuery, user *models.User) (template.HTML, error) {
	var name string
	switch d.(type) {
	case Closed:
		return "", nil
	case Creating:
		name = "dialog_create"
	case Viewing:
		name = "dialog_view"
	case Editing:
		name = "dialog_edit"
	case ConfirmingDelete:
		name = "dialog_delete"
	default:
		return "", fmt.Errorf("unknown dialog %T", d)
	}

	view := dialogView{Dialog: d, Query: q, Return: q.Encode()}
	if user != nil {
		view.UserID = user.ID
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

// openDialog resolves the dialog and id URL parameters. A gadget that no
// longer exists closes the dialog.
func openDialog(ctx context.Context, svc *gadget.Service, kind, rawID string, user *models.User) (Dialog, error) {
	if kind == "create" {
		form := FormValues{}
		if user != nil {
			form.CreatedBy = strconv.FormatUint(uint64(user.ID), 10)
		}
		return Creating{Form: form}, nil
	}
	if kind != "view" && kind != "edit" && kind != "delete" {
		return Closed{}, nil
	}

	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return Closed{}, nil
	}
	g, err := svc.Get(ctx, uint(id))
	if err != nil {
		return Closed{}, err
	}
	r := gadget.NewResource(g, svc.Storage())

	switch kind {
	case "view":
		return Viewing{Gadget: r}, nil
	case "edit":
		return Editing{Gadget: r, Form: formFromResource(r)}, nil
	default:
		return ConfirmingDelete{Gadget: r}, nil
	}
}
