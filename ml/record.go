package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
	ErrUnknownField = errors.New("unknown field")
)

// FeatureRecord is one row of classifier input.
type FeatureRecord struct {
	Age                 int     `json:"age"`
	Gender              string  `json:"gender"`
	Weight              int     `json:"weight"`
	Height              int     `json:"height"`
	BMI                 float64 `json:"bmi"`
	Smoking             string  `json:"smoking"`
	AlcoholIntake       string  `json:"alcohol_intake"`
	PhysicalActivity    string  `json:"physical_activity"`
	Diet                string  `json:"diet"`
	StressLevel         string  `json:"stress_level"`
	Hypertension        int     `json:"hypertension"`
	Diabetes            int     `json:"diabetes"`
	Hyperlipidemia      int     `json:"hyperlipidemia"`
	FamilyHistory       int     `json:"family_history"`
	PreviousHeartAttack int     `json:"previous_heart_attack"`
	SystolicBP          int     `json:"systolic_bp"`
	DiastolicBP         int     `json:"diastolic_bp"`
	HeartRate           int     `json:"heart_rate"`
	BloodSugarFasting   int     `json:"blood_sugar_fasting"`
	CholesterolTotal    int     `json:"cholesterol_total"`
}

// Row is a single-row frame keyed by column name. Numeric cells hold
// float64, categorical cells hold string, a nil cell is a missing value.
type Row map[string]any

// fields returns pointers to the record fields in schema order.
func (r *FeatureRecord) fields() []any {
	return []any{
		&r.Age, &r.Gender, &r.Weight, &r.Height, &r.BMI,
		&r.Smoking, &r.AlcoholIntake, &r.PhysicalActivity, &r.Diet, &r.StressLevel,
		&r.Hypertension, &r.Diabetes, &r.Hyperlipidemia, &r.FamilyHistory, &r.PreviousHeartAttack,
		&r.SystolicBP, &r.DiastolicBP, &r.HeartRate, &r.BloodSugarFasting, &r.CholesterolTotal,
	}
}

// Row converts the record into the frame the pipeline consumes.
func (r FeatureRecord) Row() Row {
	row := make(Row, len(schema))
	for i, ref := range r.fields() {
		switch v := ref.(type) {
		case *int:
			row[schema[i].Name] = float64(*v)
		case *float64:
			row[schema[i].Name] = *v
		case *string:
			row[schema[i].Name] = *v
		}
	}
	return row
}

// Values returns the record as display strings keyed by column name.
func (r FeatureRecord) Values() map[string]string {
	values := make(map[string]string, len(schema))
	for i, ref := range r.fields() {
		values[schema[i].Name] = formatRef(ref)
	}
	return values
}

// Validate checks every field against its column domain.
func (r FeatureRecord) Validate() error {
	var verr ValidationError
	for i, ref := range r.fields() {
		spec := schema[i]
		switch v := ref.(type) {
		case *int:
			if !spec.InRange(float64(*v)) {
				verr.add(spec.Name, ErrInvalidField, rangeMessage(spec))
			}
		case *float64:
			if math.IsNaN(*v) || !spec.InRange(*v) {
				verr.add(spec.Name, ErrInvalidField, rangeMessage(spec))
			}
		case *string:
			if !containsString(spec.Categories, *v) {
				verr.add(spec.Name, ErrInvalidField, categoryMessage(spec))
			}
		}
	}
	return verr.orNil()
}

// DefaultRecord returns the values the form starts with.
func DefaultRecord() FeatureRecord {
	return FeatureRecord{
		Age:                 30,
		Gender:              "Male",
		Weight:              70,
		Height:              170,
		BMI:                 ComputeBMI(70, 170),
		Smoking:             "Never",
		AlcoholIntake:       "unknown",
		PhysicalActivity:    "Sedentary",
		Diet:                "Healthy",
		StressLevel:         "Low",
		Hypertension:        0,
		Diabetes:            0,
		Hyperlipidemia:      0,
		FamilyHistory:       0,
		PreviousHeartAttack: 0,
		SystolicBP:          120,
		DiastolicBP:         80,
		HeartRate:           70,
		BloodSugarFasting:   100,
		CholesterolTotal:    180,
	}
}

// ComputeBMI derives body mass index from weight in kg and height in cm,
// rounded to two decimals and clamped to the bmi column domain.
func ComputeBMI(weightKg, heightCm int) float64 {
	spec, _ := LookupColumn("bmi")
	if weightKg <= 0 || heightCm <= 0 {
		return spec.Min
	}
	meters := float64(heightCm) / 100
	bmi := math.Round(float64(weightKg)/(meters*meters)*100) / 100
	return math.Min(math.Max(bmi, spec.Min), spec.Max)
}

// DecodeRecord builds a record from a JSON object. Every column must be
// present with a non-null value of the right type.
func DecodeRecord(fields map[string]json.RawMessage) (FeatureRecord, error) {
	var (
		record FeatureRecord
		verr   ValidationError
	)
	verr.addUnknown(keysOf(fields))
	for i, ref := range record.fields() {
		spec := schema[i]
		raw, ok := fields[spec.Name]
		if !ok {
			verr.add(spec.Name, ErrMissingField, "field is required")
			continue
		}
		value, err := decodeJSONCell(spec, raw)
		if err != nil {
			verr.add(spec.Name, ErrInvalidField, err.Error())
			continue
		}
		assign(ref, value)
	}
	if err := verr.orNil(); err != nil {
		return FeatureRecord{}, err
	}
	if err := record.Validate(); err != nil {
		return FeatureRecord{}, err
	}
	return record, nil
}

// ParseFormRecord builds a record from submitted form values.
func ParseFormRecord(form url.Values) (FeatureRecord, error) {
	var (
		record FeatureRecord
		verr   ValidationError
	)
	for i, ref := range record.fields() {
		spec := schema[i]
		raws, ok := form[spec.Name]
		if !ok || len(raws) == 0 || strings.TrimSpace(raws[0]) == "" {
			verr.add(spec.Name, ErrMissingField, "field is required")
			continue
		}
		value, err := ParseField(spec.Name, raws[0])
		if err != nil {
			verr.add(spec.Name, ErrInvalidField, err.Error())
			continue
		}
		assign(ref, value)
	}
	if err := verr.orNil(); err != nil {
		return FeatureRecord{}, err
	}
	if err := record.Validate(); err != nil {
		return FeatureRecord{}, err
	}
	return record, nil
}

// ParseField converts one raw text input into its typed cell value: int
// for integer and flag columns, float64 for float columns and the
// canonical category string for categorical columns. Domains are checked.
func ParseField(name, raw string) (any, error) {
	spec, ok := LookupColumn(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	raw = strings.TrimSpace(raw)
	if !spec.Numeric() {
		category, ok := spec.Canonical(raw)
		if !ok {
			return nil, errors.New(categoryMessage(spec))
		}
		return category, nil
	}
	number, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New("must be a number")
	}
	return numericCell(spec, number)
}

func decodeJSONCell(spec ColumnSpec, raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.New("value is required")
	}
	if !spec.Numeric() {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, errors.New("must be a string")
		}
		category, ok := spec.Canonical(text)
		if !ok {
			return nil, errors.New(categoryMessage(spec))
		}
		return category, nil
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err != nil {
		return nil, errors.New("must be a number")
	}
	return numericCell(spec, number)
}

func numericCell(spec ColumnSpec, number float64) (any, error) {
	if math.IsNaN(number) || math.IsInf(number, 0) {
		return nil, errors.New("must be a finite number")
	}
	if !spec.InRange(number) {
		return nil, errors.New(rangeMessage(spec))
	}
	if spec.Kind == KindFloat {
		return number, nil
	}
	if number != math.Trunc(number) {
		return nil, errors.New("must be a whole number")
	}
	return int(number), nil
}

func assign(ref any, value any) {
	switch p := ref.(type) {
	case *int:
		*p, _ = value.(int)
	case *float64:
		*p, _ = value.(float64)
	case *string:
		*p, _ = value.(string)
	}
}

func formatRef(ref any) string {
	switch v := ref.(type) {
	case *int:
		return strconv.Itoa(*v)
	case *float64:
		return strconv.FormatFloat(*v, 'f', 2, 64)
	case *string:
		return *v
	}
	return ""
}

func rangeMessage(spec ColumnSpec) string {
	if spec.Kind == KindFlag {
		return "must be 0 or 1"
	}
	if spec.Kind == KindFloat {
		return fmt.Sprintf("must be between %.1f and %.1f", spec.Min, spec.Max)
	}
	return fmt.Sprintf("must be between %d and %d", int(spec.Min), int(spec.Max))
}

func categoryMessage(spec ColumnSpec) string {
	return "must be one of " + strings.Join(spec.Categories, ", ")
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func keysOf(fields map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FieldError is a problem with a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// ValidationError collects every field problem of one record.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, field := range e.Fields {
		parts[i] = field.Error()
	}
	return "invalid record: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Fields))
	for i, field := range e.Fields {
		errs[i] = field
	}
	return errs
}

// Messages maps each failing field to its message.
func (e *ValidationError) Messages() map[string]string {
	messages := make(map[string]string, len(e.Fields))
	for _, field := range e.Fields {
		messages[field.Field] = field.Message
	}
	return messages
}

func (e *ValidationError) add(field string, kind error, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Err: kind})
}

func (e *ValidationError) addUnknown(keys []string) {
	for _, key := range keys {
		if _, ok := LookupColumn(key); !ok {
			e.add(key, ErrUnknownField, "field is not part of the schema")
		}
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: e.Fields}
}
