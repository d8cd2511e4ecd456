package trigger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/zhy0216/offramp/pkg/types"
)

// ErrInvalidInput is matched by every *ValidationError via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError describes the first problem found in a conversation or in
// an Options record. Index is the offending message position, or -1 when the
// problem is not tied to a single message.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("message %d: %s %s", e.Index, e.Field, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return e.Reason
}

// Unwrap lets errors.Is(err, ErrInvalidInput) succeed.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

var (
	vOnce sync.Once
	vInst *validator.Validate
)

// validate returns the shared validator. It only carries rule definitions,
// never conversation data.
func validate() *validator.Validate {
	vOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = v.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
			return utf8.ValidString(fl.Field().String())
		})

		vInst = v
	})
	return vInst
}

// Validate checks that every message has a known role and textual content,
// and that the conversation is within the length cap. Timestamps are epoch
// milliseconds, so a negative timestamp is rejected as invalid input;
// ordering is not checked.
func Validate(conv []types.Message) error {
	if len(conv) > types.MaxConversationMessages {
		return &ValidationError{
			Index:  -1,
			Reason: fmt.Sprintf("conversation has %d messages, limit is %d", len(conv), types.MaxConversationMessages),
		}
	}
	v := validate()
	for i, m := range conv {
		if err := v.Struct(m); err != nil {
			fe, ok := firstFieldError(err)
			if !ok {
				return fmt.Errorf("message %d: %w", i, err)
			}
			return &ValidationError{Index: i, Field: fe.Field(), Reason: describe(fe)}
		}
	}
	return nil
}

// Validate checks the options that are set: counts must be at least 1
// (MinAssistantLength at least 0), ratios must not be negative, the
// similarity floor must lie in [0,1], and request patterns must be non-empty
// strings.
func (o Options) Validate() error {
	if err := validate().Struct(o); err != nil {
		fe, ok := firstFieldError(err)
		if !ok {
			return fmt.Errorf("options: %w", err)
		}
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		return &ValidationError{Index: -1, Field: field, Reason: describe(fe)}
	}
	return nil
}

func firstFieldError(err error) (validator.FieldError, bool) {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		return ves[0], true
	}
	return nil, false
}

// describe turns a failed rule into a short reason.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "utf8":
		return "must be valid UTF-8 text"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "min":
		return "must not be empty"
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
