package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/xenovalaw/xenova/internal/errors"
	"github.com/xenovalaw/xenova/internal/models"
	"github.com/xenovalaw/xenova/pkg/auth"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := auth.ParseRole(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("theme", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case models.ThemeSystem, models.ThemeLight, models.ThemeDark:
			return true
		}
		return false
	})
	return v
}

// validationErrors maps JSON field names to a problem description.
type validationErrors map[string]string

func (v validationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

func (v validationErrors) details() map[string]any {
	fields := make(map[string]any, len(v))
	for f, msg := range v {
		fields[f] = msg
	}
	return map[string]any{"fields": fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "role":
		return "must be a known role"
	case "theme":
		return "must be one of: light dark system"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// validateStruct runs the struct tags of v.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Invalid("validate_request", "%v", err)
	}
	out := make(validationErrors, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if ns := fe.Namespace(); strings.Count(ns, ".") > 1 {
			name = ns[strings.Index(ns, ".")+1:]
		}
		out[name] = describe(fe)
	}
	return out
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.Invalid("decode_request", "request body exceeds %d bytes", maxJSONBody)
		case errors.Is(err, io.EOF):
			return apperrors.Invalid("decode_request", "request body is empty")
		default:
			return apperrors.Invalid("decode_request", "malformed JSON: %s", jsonProblem(err))
		}
	}
	if dec.More() {
		return apperrors.Invalid("decode_request", "request body must contain a single JSON object")
	}
	return validateStruct(dst)
}

func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("syntax error at offset %d", syntaxErr.Offset)
	}
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return strings.TrimPrefix(err.Error(), "json: ")
	}
	return "unreadable body"
}
