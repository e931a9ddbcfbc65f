package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
)

const validationOptionsKey = "beacon.validation"

// ValidationOptions control how Bind treats request bodies.
type ValidationOptions struct {
	// Whitelist drops JSON fields the target struct does not declare.
	// When false, unknown fields reject the request.
	Whitelist bool
	// Transform applies `mod` struct tags (trim, lcase, default, ...) after
	// decoding.
	Transform bool
	// DisableErrorMessages replaces per-field details with a bare
	// "Bad Request".
	DisableErrorMessages bool
}

// defaultValidation applies when the validation policy is not installed.
var defaultValidation = ValidationOptions{Whitelist: true, Transform: true}

var (
	validate = newValidator()
	conform  = modifiers.New()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// FieldViolation is one entry of a detailed validation error response.
type FieldViolation struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// Bind decodes the JSON request body into dst (a pointer to struct), applies
// transforms and validation per the request's ValidationOptions, and writes
// a 400 response on failure. It returns false when the handler must stop.
// An empty body binds the zero value.
func Bind(c *gin.Context, dst any) bool {
	opts := validationOptions(c)

	if err := decodeBody(c.Request, dst, opts.Whitelist); err != nil {
		reject(c, opts, []FieldViolation{{Message: err.Error()}})
		return false
	}

	if opts.Transform {
		if err := conform.Struct(c.Request.Context(), dst); err != nil {
			reject(c, opts, []FieldViolation{{Message: fmt.Sprintf("transform: %v", err)}})
			return false
		}
	}

	if err := validate.StructCtx(c.Request.Context(), dst); err != nil {
		reject(c, opts, violations(err))
		return false
	}
	return true
}

func validationOptions(c *gin.Context) ValidationOptions {
	if v, ok := c.Get(validationOptionsKey); ok {
		if opts, ok := v.(ValidationOptions); ok {
			return opts
		}
	}
	return defaultValidation
}

func decodeBody(r *http.Request, dst any, whitelist bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if !whitelist {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func violations(err error) []FieldViolation {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldViolation{{Message: err.Error()}}
	}
	out := make([]FieldViolation, len(verrs))
	for i, fe := range verrs {
		msg := fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed on the '%s=%s' rule", fe.Field(), fe.Tag(), fe.Param())
		}
		out[i] = FieldViolation{Field: fe.Field(), Rule: fe.Tag(), Message: msg}
	}
	return out
}

func reject(c *gin.Context, opts ValidationOptions, details []FieldViolation) {
	if opts.DisableErrorMessages {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  http.StatusText(http.StatusBadRequest),
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"status":  "error",
		"error":   "validation failed",
		"details": details,
	})
}
