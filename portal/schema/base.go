package schema

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Base is embedded by every entity that uses an auto-assigned integer key.
type Base struct {
	Id uint `gorm:"primaryKey" json:"id"`
}

func (b *Base) PrimaryKey() uint {
	return b.Id
}

func (b *Base) SetPrimaryKey(id uint) {
	b.Id = id
}

const DateLayout = "2006-01-02"

// Date is a calendar date column. It is stored with the datatypes.Date
// valuer/scanner and serialized as YYYY-MM-DD.
type Date struct {
	datatypes.Date
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))}
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func ParseDate(value string) (Date, error) {
	if t, err := time.Parse(DateLayout, value); err == nil {
		return Date{datatypes.Date(t)}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date '%v', expected format YYYY-MM-DD", value)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) Time() time.Time {
	return time.Time(d.Date)
}

func (d Date) IsZero() bool {
	return d.Time().IsZero()
}

func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if value == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Time is a time-of-day column. It is stored with the datatypes.Time
// valuer/scanner and serialized as HH:MM:SS. A value that could not be parsed
// is kept as invalid so that validation can report it on its field, and it
// refuses to be written to the store.
type Time struct {
	datatypes.Time
	raw   string
	valid bool
}

func NewTime(hour, minute int) Time {
	return Time{Time: datatypes.NewTime(hour, minute, 0, 0), valid: true}
}

func ParseTime(value string) (Time, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return Time{Time: datatypes.NewTime(t.Hour(), t.Minute(), t.Second(), 0), valid: true}, nil
		}
	}
	return Time{raw: value}, fmt.Errorf("invalid time '%v', expected format HH:MM", value)
}

// IsSet reports whether the time holds a parsed or stored value.
func (t Time) IsSet() bool {
	return t.valid
}

// Invalid reports whether the time was given in an unrecognized format.
func (t Time) Invalid() bool {
	return t.raw != ""
}

func (t Time) Before(other Time) bool {
	return t.Time < other.Time
}

// FormatTime renders a time column as HH:MM.
func FormatTime(t Time) string {
	d := time.Duration(t.Time)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func (t Time) String() string {
	d := time.Duration(t.Time)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func (t Time) Value() (driver.Value, error) {
	if t.Invalid() {
		return nil, fmt.Errorf("invalid time '%v'", t.raw)
	}
	return t.Time.Value()
}

func (t *Time) Scan(src interface{}) error {
	if err := t.Time.Scan(src); err != nil {
		return err
	}
	t.raw, t.valid = "", true
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if !t.valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Time{}
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	if value == "" {
		*t = Time{}
		return nil
	}
	// Unparsable input is kept so the field rule can reject it.
	parsed, _ := ParseTime(value)
	*t = parsed
	return nil
}

// Choice is one allowed value of an enumerated column with its display label.
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

func ChoiceLabel(choices []Choice, value string) (string, bool) {
	for _, c := range choices {
		if c.Value == value {
			return c.Label, true
		}
	}
	return "", false
}

func ChoiceValues(choices []Choice) []string {
	values := make([]string, 0, len(choices))
	for _, c := range choices {
		values = append(values, c.Value)
	}
	return values
}
