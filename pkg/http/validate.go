package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports json/query names instead of Go field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds path, query and body into req, fills default
// tags and validates. It returns nil when the request is usable.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, len(fieldErrs))
		for i, fe := range fieldErrs {
			out[i] = describe(fe)
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// rule phrases a validator tag; param names the key the tag argument is
// reported under.
type rule struct {
	phrase string
	param  string
}

var rules = map[string]rule{
	"required": {phrase: "is required"},
	"gt":       {phrase: "must be greater than %s", param: "value"},
	"gte":      {phrase: "must be greater than or equal to %s", param: "min"},
	"lt":       {phrase: "must be less than %s", param: "value"},
	"lte":      {phrase: "must be less than or equal to %s", param: "max"},
	"min":      {phrase: "must be at least %s", param: "min"},
	"max":      {phrase: "must be at most %s", param: "max"},
}

func describe(fe validator.FieldError) ValidationError {
	ve := ValidationError{
		Code:   "ERR_" + strings.ToUpper(fe.Tag()),
		Field:  fe.Field(),
		Params: map[string]interface{}{},
	}

	if fe.Tag() == "oneof" {
		options := strings.Fields(fe.Param())
		ve.Message = fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(options, ", "))
		ve.Params["options"] = options
		return ve
	}

	r, ok := rules[fe.Tag()]
	if !ok {
		ve.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
		return ve
	}

	phrase := r.phrase
	if r.param != "" {
		phrase = fmt.Sprintf(phrase, fe.Param())
		ve.Params[r.param] = fe.Param()
	}
	// min/max on strings count characters.
	if (fe.Tag() == "min" || fe.Tag() == "max") && fe.Kind() == reflect.String {
		phrase += " characters"
	}
	ve.Message = fe.Field() + " " + phrase
	return ve
}
