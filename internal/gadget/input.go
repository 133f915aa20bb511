package gadget

import (
	"net/http"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	// MaxImageSize is the upload limit for gadget images (2048 KB).
	MaxImageSize = 2048 * 1024
	// MaxNameLength bounds the name column.
	MaxNameLength = 255
)

var (
	allowedImageExtensions = map[string]bool{".jpeg": true, ".png": true, ".jpg": true, ".gif": true}
	allowedImageTypes      = map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true}

	// numeric(12,2)
	maxPrice = decimal.RequireFromString("9999999999.99")
)

// Input carries the create/update form fields as received.
type Input struct {
	Name        string `form:"name" validate:"required,max=255"`
	Description string `form:"description"`
	Price       string `form:"price" validate:"required,numeric,nonnegative"`
	CreatedBy   string `form:"created_by" validate:"required,numeric"`
	Image       Image  `form:"-" validate:"-"`
}

// normalized trims the text fields; an empty description becomes NULL.
func (in Input) normalized() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Price = strings.TrimSpace(in.Price)
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)
	if in.Image == nil {
		in.Image = Absent{}
	}
	return in
}

// fields is the validated, typed form of Input.
type fields struct {
	name        string
	description *string
	price       decimal.Decimal
	createdBy   uint
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nonnegative", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	return v
}

// validateFields checks the scalar fields. Image rules are applied separately
// because they depend on the operation.
func validateFields(v *validator.Validate, in Input, verr *ValidationError) fields {
	var out fields

	if err := v.Struct(in); err != nil {
		if ves, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ves {
				verr.Add(fe.Field(), validationMessage(fe))
			}
		} else {
			verr.Add("form", "The form could not be validated.")
		}
	}

	out.name = in.Name
	if in.Description != "" {
		d := in.Description
		out.description = &d
	}

	if !verr.Has("price") {
		price, _ := decimal.NewFromString(in.Price)
		price = price.Round(2)
		if price.GreaterThan(maxPrice) {
			verr.Add("price", "The price field must not be greater than "+maxPrice.StringFixed(2)+".")
		}
		out.price = price
	}

	if !verr.Has("created_by") {
		id, err := strconv.ParseUint(in.CreatedBy, 10, 64)
		if err != nil || id == 0 {
			verr.Add("created_by", "The selected created by is invalid.")
		}
		out.createdBy = uint(id)
	}

	return out
}

// validateNewFile applies the jpeg/png/jpg/gif and 2048 KB rules.
func validateNewFile(f NewFile, verr *ValidationError) (contentType string) {
	if f.Size > MaxImageSize {
		verr.Add("image", "The image field must not be greater than 2048 kilobytes.")
		return ""
	}
	if len(f.Data) == 0 {
		verr.Add("image", "The image field must be an image.")
		return ""
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	contentType = http.DetectContentType(f.Data)
	if !allowedImageExtensions[ext] || !allowedImageTypes[contentType] {
		verr.Add("image", "The image field must be a file of type: jpeg, png, jpg, gif.")
		return ""
	}
	return contentType
}

func validationMessage(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return "The " + label + " field is required."
	case "max":
		return "The " + label + " field must not be greater than " + fe.Param() + " characters."
	case "numeric":
		return "The " + label + " field must be a number."
	case "nonnegative":
		return "The " + label + " field must be at least 0."
	default:
		return "The " + label + " field is invalid."
	}
}

// extensionFor picks the stored file extension from the sniffed type.
func extensionFor(contentType, name string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext == ".jpeg" {
		return ext
	}
	return ".jpg"
}
