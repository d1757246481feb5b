package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"fraudscore/internal/domain"
)

// Error types reported in FieldError.Type. The strings match what existing
// clients of the scoring API already parse.
const (
	TypeMissing          = "missing"
	TypeIntType          = "int_type"
	TypeIntFromFloat     = "int_from_float"
	TypeIntParsing       = "int_parsing"
	TypeFloatType        = "float_type"
	TypeFloatParsing     = "float_parsing"
	TypeFiniteNumber     = "finite_number"
	TypeGreaterThanEqual = "greater_than_equal"
	TypeLessThanEqual    = "less_than_equal"
	TypeLiteral          = "literal_error"
	TypeJSONInvalid      = "json_invalid"
	TypeNotObject        = "model_attributes_type"
)

const bodyLoc = "body"

var ErrEmptyBody = errors.New("empty request body")

// FieldError describes one rejected field.
type FieldError struct {
	Loc   []string `json:"loc"`
	Msg   string   `json:"msg"`
	Type  string   `json:"type"`
	Input any      `json:"input,omitempty"`
}

// Field returns the field name the error refers to, or "" for body-level
// errors.
func (fe FieldError) Field() string {
	if len(fe.Loc) < 2 {
		return ""
	}
	return fe.Loc[len(fe.Loc)-1]
}

// ValidationError carries every field failure found in one payload.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(fe.Loc, "."), fe.Msg))
	}
	return fmt.Sprintf("validation errors: %s", strings.Join(parts, "; "))
}

// Has reports whether a failure of the given type was recorded for field.
func (e *ValidationError) Has(field, errType string) bool {
	for _, fe := range e.Errors {
		if fe.Field() == field && fe.Type == errType {
			return true
		}
	}
	return false
}

type fieldKind int

const (
	kindInt fieldKind = iota
	kindFloat
	kindEnum
)

type fieldRule struct {
	name     string
	kind     fieldKind
	hasMin   bool
	min      float64
	hasMax   bool
	max      float64
	allowed  []int
	setInt   func(*domain.FeatureVector, int)
	setFloat func(*domain.FeatureVector, float64)
}

type FeatureValidator struct {
	rules []fieldRule
}

func NewFeatureValidator() *FeatureValidator {
	return &FeatureValidator{
		rules: []fieldRule{
			{
				name: domain.FieldAge, kind: kindInt,
				hasMin: true, min: 0, hasMax: true, max: 120,
				setInt: func(fv *domain.FeatureVector, v int) { fv.Age = v },
			},
			{
				name: domain.FieldGenderCode, kind: kindEnum, allowed: []int{0, 1, 2},
				setInt: func(fv *domain.FeatureVector, v int) { fv.GenderCode = v },
			},
			{
				name: domain.FieldLocation, kind: kindInt, hasMin: true, min: 0,
				setInt: func(fv *domain.FeatureVector, v int) { fv.Location = v },
			},
			{
				name: domain.FieldSubscriptionTypeCode, kind: kindEnum, allowed: []int{0, 1, 2},
				setInt: func(fv *domain.FeatureVector, v int) { fv.SubscriptionTypeCode = v },
			},
			{
				name: domain.FieldTenureMonths, kind: kindInt, hasMin: true, min: 0,
				setInt: func(fv *domain.FeatureVector, v int) { fv.TenureMonths = v },
			},
			{
				name: domain.FieldIncomeBracketCode, kind: kindEnum, allowed: []int{0, 1, 2},
				setInt: func(fv *domain.FeatureVector, v int) { fv.IncomeBracketCode = v },
			},
			{
				name: domain.FieldEventCreatedAtTS, kind: kindFloat,
				setFloat: func(fv *domain.FeatureVector, v float64) { fv.EventCreatedAtTS = v },
			},
			{
				name: domain.FieldTransactionValue, kind: kindFloat, hasMin: true, min: 0,
				setFloat: func(fv *domain.FeatureVector, v float64) { fv.TransactionValue = v },
			},
			{
				name: domain.FieldChannelCode, kind: kindEnum, allowed: []int{0, 1},
				setInt: func(fv *domain.FeatureVector, v int) { fv.ChannelCode = v },
			},
		},
	}
}

// ValidateJSON decodes a request body and validates it. Malformed JSON and
// non-object bodies are reported as a ValidationError as well.
func (v *FeatureValidator) ValidateJSON(body []byte) (domain.FeatureVector, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.FeatureVector{}, bodyError(TypeJSONInvalid, "JSON decode error", ErrEmptyBody.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return domain.FeatureVector{}, bodyError(TypeJSONInvalid, "JSON decode error", err.Error())
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.FeatureVector{}, bodyError(TypeJSONInvalid, "JSON decode error", "unexpected data after top-level value")
	}

	raw, ok := payload.(map[string]any)
	if !ok {
		return domain.FeatureVector{}, bodyError(TypeNotObject,
			"Input should be a valid dictionary or object to extract fields from", nil)
	}

	return v.Validate(raw)
}

// Validate checks every field of raw and returns all failures at once.
func (v *FeatureValidator) Validate(raw map[string]any) (domain.FeatureVector, error) {
	var (
		fv   domain.FeatureVector
		errs []FieldError
	)

	for _, rule := range v.rules {
		value, exists := raw[rule.name]
		if !exists {
			errs = append(errs, FieldError{
				Loc:  []string{bodyLoc, rule.name},
				Msg:  "Field required",
				Type: TypeMissing,
			})
			continue
		}

		if fe := rule.apply(&fv, value); fe != nil {
			fe.Loc = []string{bodyLoc, rule.name}
			fe.Input = value
			errs = append(errs, *fe)
		}
	}

	if len(errs) > 0 {
		return domain.FeatureVector{}, &ValidationError{Errors: errs}
	}

	return fv, nil
}

func (r fieldRule) apply(fv *domain.FeatureVector, value any) *FieldError {
	switch r.kind {
	case kindFloat:
		f, fe := coerceFloat(value)
		if fe != nil {
			return fe
		}
		if fe := r.checkRange(f); fe != nil {
			return fe
		}
		r.setFloat(fv, f)
	case kindInt:
		i, fe := coerceInt(value)
		if fe != nil {
			return fe
		}
		if fe := r.checkRange(float64(i)); fe != nil {
			return fe
		}
		r.setInt(fv, i)
	case kindEnum:
		i, fe := coerceInt(value)
		if fe != nil {
			return fe
		}
		if !r.isAllowed(i) {
			return &FieldError{Msg: "Input should be " + literalList(r.allowed), Type: TypeLiteral}
		}
		r.setInt(fv, i)
	}
	return nil
}

func (r fieldRule) checkRange(f float64) *FieldError {
	if r.hasMin && f < r.min {
		return &FieldError{
			Msg:  "Input should be greater than or equal to " + formatBound(r.min),
			Type: TypeGreaterThanEqual,
		}
	}
	if r.hasMax && f > r.max {
		return &FieldError{
			Msg:  "Input should be less than or equal to " + formatBound(r.max),
			Type: TypeLessThanEqual,
		}
	}
	return nil
}

func (r fieldRule) isAllowed(i int) bool {
	for _, a := range r.allowed {
		if a == i {
			return true
		}
	}
	return false
}

func coerceInt(value any) (int, *FieldError) {
	switch v := value.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, &FieldError{Msg: "Input should be a valid integer, unable to parse string as an integer", Type: TypeIntParsing}
		}
		return intFromFloat(f)
	case float64:
		return intFromFloat(v)
	case float32:
		return intFromFloat(float64(v))
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, &FieldError{Msg: "Input should be a valid integer, unable to parse string as an integer", Type: TypeIntParsing}
		}
		return int(i), nil
	default:
		return 0, &FieldError{Msg: "Input should be a valid integer", Type: TypeIntType}
	}
}

func intFromFloat(f float64) (int, *FieldError) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &FieldError{Msg: "Input should be a finite number", Type: TypeFiniteNumber}
	}
	if f != math.Trunc(f) {
		return 0, &FieldError{Msg: "Input should be a valid integer, got a number with a fractional part", Type: TypeIntFromFloat}
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, &FieldError{Msg: "Input should be a valid integer, unable to parse string as an integer", Type: TypeIntParsing}
	}
	return int(f), nil
}

func coerceFloat(value any) (float64, *FieldError) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, &FieldError{Msg: "Input should be a finite number", Type: TypeFiniteNumber}
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, &FieldError{Msg: "Input should be a valid number, unable to parse string as a number", Type: TypeFloatParsing}
		}
		f = parsed
	default:
		return 0, &FieldError{Msg: "Input should be a valid number", Type: TypeFloatType}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &FieldError{Msg: "Input should be a finite number", Type: TypeFiniteNumber}
	}
	return f, nil
}

func bodyError(errType, msg string, input any) *ValidationError {
	return &ValidationError{Errors: []FieldError{{
		Loc:   []string{bodyLoc},
		Msg:   msg,
		Type:  errType,
		Input: input,
	}}}
}

// literalList renders allowed values the way clients expect: "0, 1 or 2".
func literalList(allowed []int) string {
	parts := make([]string, len(allowed))
	for i, a := range allowed {
		parts[i] = strconv.Itoa(a)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
