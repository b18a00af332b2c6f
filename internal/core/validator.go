package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"seep/internal/security"
	"seep/internal/types"
)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether the result carries no errors. Warnings do not
// make a result invalid.
func (r ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

// Warner is implemented by request types that can flag accepted but
// suspicious input.
type Warner interface {
	ValidationWarnings() []string
}

// Validator wraps go-playground/validator and registers the service's custom
// tags:
//
//	shop_domain  bare hostname, no scheme, path or blocked IP literal
//	no_control   free text without control characters
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with the custom tags registered. Field
// names in errors use the json or form tag when one is present.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	if err := v.RegisterValidation("shop_domain", validateShopDomain); err != nil {
		logger.Error("failed to register shop_domain validator", "error", err)
	}
	if err := v.RegisterValidation("no_control", validateNoControl); err != nil {
		logger.Error("failed to register no_control validator", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and returns a *types.AppError whose code follows
// the first failure. All failures are listed under the "validation_errors"
// detail.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates s and collects warnings from a Warner.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	if err := v.validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			v.logger.Error("validation failed unexpectedly", "error", err)
			result.Errors = append(result.Errors, ValidationError{
				Code:    string(types.ErrCodeValidationInvalidField),
				Message: "request could not be validated",
			})
			return result
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, toValidationError(fe))
		}
	}

	if w, ok := s.(Warner); ok {
		result.Warnings = w.ValidationWarnings()
	}
	return result
}

func toValidationError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationMissingField),
			Message: fmt.Sprintf("%s is required", field),
		}
	case "max":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: fmt.Sprintf("%s must be at most %s characters", field, fe.Param()),
		}
	case "shop_domain":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: fmt.Sprintf("%s must be a store hostname such as shop.myshopify.com", field),
		}
	default:
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: fmt.Sprintf("%s is invalid", field),
		}
	}
}

func validateShopDomain(fl validator.FieldLevel) bool {
	d := fl.Field().String()
	if d == "" {
		return true
	}
	if strings.ContainsAny(d, "/:?#@ ") {
		return false
	}
	if addr, err := netip.ParseAddr(d); err == nil {
		return !security.IsBlocked(addr)
	}
	if !strings.Contains(d, ".") {
		return false
	}
	return isHostname(d)
}

func isHostname(d string) bool {
	if len(d) > 253 {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			if !(c == '-' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
				return false
			}
		}
	}
	return true
}

func validateNoControl(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
}
