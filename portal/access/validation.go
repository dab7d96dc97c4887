package access

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"coursework/portal/schema"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

const NonFieldErrors = "non_field_errors"

// ValidationError collects every rule failure of a write, keyed by field.
// Failures that do not belong to a single field are kept under
// NonFieldErrors.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError(field, message string) *ValidationError {
	e := &ValidationError{}
	e.Add(field, message)
	return e
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Merge(other *ValidationError) {
	for field, messages := range other.Fields {
		for _, msg := range messages {
			e.Add(field, msg)
		}
	}
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) For(field string) []string {
	return e.Fields[field]
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%v: %v", field, strings.Join(e.Fields[field], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields)
}

// AsValidationError unwraps err into a validation error if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// Validator accumulates field checks for one row.
type Validator struct {
	err ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Fail(field, message string) {
	v.err.Add(field, message)
}

func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.Fail(field, "This field is required.")
		return false
	}
	return true
}

func (v *Validator) MaxLength(field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		v.Fail(field, fmt.Sprintf("Ensure this field has no more than %d characters.", max))
	}
}

func (v *Validator) RequiredString(field, value string, max int) {
	if v.Required(field, value) {
		v.MaxLength(field, value, max)
	}
}

func (v *Validator) OptionalString(field string, value *string, max int) {
	if value != nil {
		v.MaxLength(field, *value, max)
	}
}

func (v *Validator) OneOf(field, value string, choices []schema.Choice) {
	if !v.Required(field, value) {
		return
	}
	if _, ok := schema.ChoiceLabel(choices, value); !ok {
		v.Fail(field, fmt.Sprintf("\"%v\" is not a valid choice.", value))
	}
}

func (v *Validator) Between(field string, value, min, max int) {
	if value < min || value > max {
		v.Fail(field, fmt.Sprintf("Ensure this value is between %d and %d.", min, max))
	}
}

func (v *Validator) AtLeast(field string, value, min float64) {
	if value < min {
		v.Fail(field, fmt.Sprintf("Ensure this value is greater than or equal to %v.", min))
	}
}

func (v *Validator) Positive(field string, value float64) {
	if value <= 0 {
		v.Fail(field, "Ensure this value is greater than 0.")
	}
}

func (v *Validator) RequiredDate(field string, value schema.Date) {
	if value.IsZero() {
		v.Fail(field, "This field is required.")
	}
}

// NotBefore checks that an optional end date does not precede its start.
func (v *Validator) NotBefore(field string, end *schema.Date, start schema.Date) {
	if end != nil && !end.IsZero() && !start.IsZero() && end.Before(start) {
		v.Fail(field, "End date cannot precede the start date.")
	}
}

// RequiredTime rejects a missing time and one given in an unrecognized format.
func (v *Validator) RequiredTime(field string, value schema.Time) bool {
	if value.Invalid() {
		v.Fail(field, "Enter a valid time.")
		return false
	}
	if !value.IsSet() {
		v.Fail(field, "This field is required.")
		return false
	}
	return true
}

func (v *Validator) RequiredRef(field string, id uint) bool {
	if id == 0 {
		v.Fail(field, "This field is required.")
		return false
	}
	return true
}

// Exists checks that a referenced row is present, so a dangling reference is
// reported on its field instead of as a storage constraint failure.
func (v *Validator) Exists(txn *gorm.DB, field string, model interface{}, id uint) error {
	if id == 0 {
		return nil
	}
	var count int64
	result := txn.Model(model).Where("id = ?", id).Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking reference", "field", field, "id", id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if count == 0 {
		v.Fail(field, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
	}
	return nil
}

func (v *Validator) ExistsOptional(txn *gorm.DB, field string, model interface{}, id *uint) error {
	if id == nil {
		return nil
	}
	return v.Exists(txn, field, model, *id)
}

// Unique checks that no other row (ignoring the row with id self) matches the
// conditions. The message is reported on field.
func (v *Validator) Unique(txn *gorm.DB, field, message string, model interface{}, self uint, conditions map[string]interface{}) error {
	query := txn.Model(model).Where(conditions)
	if self != 0 {
		query = query.Where("id <> ?", self)
	}
	var count int64
	if result := query.Count(&count); result.Error != nil {
		slog.Error("sql error checking uniqueness", "field", field, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if count > 0 {
		v.Fail(field, message)
	}
	return nil
}

// Err returns the collected failures, or nil if every check passed.
func (v *Validator) Err() error {
	if v.err.Empty() {
		return nil
	}
	verr := v.err
	return &verr
}
