package web

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
)

const (
	methodOverrideHeader = "X-HTTP-Method-Override"
	methodOverrideField  = "_method"
	multipartMemory      = 32 << 20
)

type tunneledKey struct{}

// methodOverride limits request bodies and lets HTML forms, which can only
// POST, reach the PATCH, PUT and DELETE routes through the _method field or
// the X-HTTP-Method-Override header. Form bodies of POST requests are parsed
// here so their fields survive the method change. Rewritten requests are
// marked; see isTunneled.
func methodOverride(next http.Handler, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}

		if r.Method == http.MethodPost {
			if isFormBody(r) {
				if err := parseFormBody(r); err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
						return
					}
					http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
					return
				}
			}

			method := r.Header.Get(methodOverrideHeader)
			if method == "" && r.PostForm != nil {
				method = r.PostForm.Get(methodOverrideField)
			}
			switch m := strings.ToUpper(strings.TrimSpace(method)); m {
			case http.MethodPatch, http.MethodPut, http.MethodDelete:
				r = r.WithContext(context.WithValue(r.Context(), tunneledKey{}, true))
				r.Method = m
			}
		}

		next.ServeHTTP(w, r)
	})
}

// isTunneled reports whether r arrived as a POST rewritten by methodOverride.
func isTunneled(r *http.Request) bool {
	v, _ := r.Context().Value(tunneledKey{}).(bool)
	return v
}

func isFormBody(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "multipart/form-data" || ct == "application/x-www-form-urlencoded"
}

func parseFormBody(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}
