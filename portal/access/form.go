package access

import (
	"net/url"
	"strconv"
	"strings"

	"coursework/portal/schema"
)

// FormReader reads typed values out of a submitted form. Values that cannot
// be parsed are recorded as field errors, so a single pass reports every bad
// input.
type FormReader struct {
	values url.Values
	err    ValidationError
}

func NewFormReader(values url.Values) *FormReader {
	return &FormReader{values: values}
}

func (f *FormReader) String(field string) string {
	return strings.TrimSpace(f.values.Get(field))
}

// OptionalString returns nil for a blank input.
func (f *FormReader) OptionalString(field string) *string {
	value := f.String(field)
	if value == "" {
		return nil
	}
	return &value
}

func (f *FormReader) Int(field string) int {
	value := f.String(field)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		f.err.Add(field, "Enter a whole number.")
	}
	return n
}

func (f *FormReader) Ref(field string) uint {
	value := f.String(field)
	if value == "" {
		return 0
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		f.err.Add(field, "Select a valid choice.")
	}
	return uint(id)
}

func (f *FormReader) Date(field string) schema.Date {
	value := f.String(field)
	if value == "" {
		return schema.Date{}
	}
	date, err := schema.ParseDate(value)
	if err != nil {
		f.err.Add(field, "Enter a valid date.")
	}
	return date
}

func (f *FormReader) OptionalDate(field string) *schema.Date {
	if f.String(field) == "" {
		return nil
	}
	date := f.Date(field)
	return &date
}

// Err returns the parse failures, or nil if every value was readable.
func (f *FormReader) Err() *ValidationError {
	if f.err.Empty() {
		return nil
	}
	verr := f.err
	return &verr
}

// FormValues is the inverse of FormReader, used to fill forms from a row.
type FormValues url.Values

func (v FormValues) Set(field, value string) FormValues {
	url.Values(v).Set(field, value)
	return v
}

func (v FormValues) SetOptional(field string, value *string) FormValues {
	if value != nil {
		v.Set(field, *value)
	}
	return v
}

func (v FormValues) SetDate(field string, date schema.Date) FormValues {
	return v.Set(field, date.String())
}

func (v FormValues) SetOptionalDate(field string, date *schema.Date) FormValues {
	if date != nil {
		v.SetDate(field, *date)
	}
	return v
}
