// Package request decodes and validates incoming request bodies and resolves
// the acting user of a request.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/pkg/middleware"
)

// multipartMemory is how much of a multipart form is held in memory before spilling to disk
const multipartMemory = 32 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json (or form) names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// DecodeJSON decodes the body into dst and validates it
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", apperr.ErrBadRequest)
	}
	return Validate(dst)
}

// Validate checks the validate tags of v
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperr.ErrBadRequest, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", apperr.ErrBadRequest, strings.Join(msgs, "; "))
}

// Actor resolves the user a request acts as. An authenticated user always wins;
// a caller-supplied id that names someone else is forbidden. Without
// authentication the supplied id is trusted.
func Actor(r *http.Request, supplied string) (string, error) {
	if userID, ok := middleware.GetUserID(r.Context()); ok {
		if supplied != "" && supplied != userID {
			return "", fmt.Errorf("%w: cannot act on behalf of another user", apperr.ErrForbidden)
		}
		return userID, nil
	}
	if supplied == "" {
		return "", fmt.Errorf("%w: user id is required", apperr.ErrBadRequest)
	}
	return supplied, nil
}

// FormFile limits the request body to maxBytes, parses the multipart form and
// returns the named file. A missing file is reported as a bad request.
func FormFile(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("%w: file exceeds %d bytes", apperr.ErrBadRequest, tooLarge.Limit)
		}
		return nil, nil, fmt.Errorf("%w: invalid multipart form", apperr.ErrBadRequest)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, fmt.Errorf("%w: no file selected", apperr.ErrBadRequest)
		}
		return nil, nil, fmt.Errorf("%w: invalid file", apperr.ErrBadRequest)
	}
	return file, header, nil
}
