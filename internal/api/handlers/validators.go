package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so errors match what the client sent.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs struct tag validation and returns the first failure as
// an auth.ValidationError.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return auth.ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	message := "is invalid"
	switch fe.Tag() {
	case "required":
		message = "is required"
	case "oneof":
		message = "must be one of: " + fe.Param()
	case "gt", "min":
		message = "must be greater than " + fe.Param()
	}
	return auth.ValidationError{Field: fe.Field(), Message: message}
}

// errMalformedBody marks a body that is not valid JSON.
var errMalformedBody = errors.New("malformed JSON body")

// decodeJSON reads a single JSON value from the request body. An empty body
// decodes as an empty object.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return maxErr
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
}

// flexID accepts an identifier sent either as a JSON number or as a numeric
// string; event IDs go out as strings and come back that way.
type flexID int64

func (id *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*id = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*id = 0
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = flexID(parsed)
	return nil
}

// idParam reads ?id= as a positive integer.
func idParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("id"))
	if raw == "" {
		return 0, auth.ValidationError{Field: "id", Message: "is required"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, auth.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}
