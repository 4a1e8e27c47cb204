package ml

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ColumnKind describes how a column is typed in the input frame.
type ColumnKind string

const (
	KindInteger     ColumnKind = "integer"
	KindFloat       ColumnKind = "float"
	KindCategorical ColumnKind = "categorical"
	KindFlag        ColumnKind = "flag"
)

// ColumnSpec is the input domain of one column.
type ColumnSpec struct {
	Name       string     `json:"name"`
	Kind       ColumnKind `json:"kind"`
	Min        float64    `json:"min,omitempty"`
	Max        float64    `json:"max,omitempty"`
	Categories []string   `json:"categories,omitempty"`
}

// Numeric reports whether the column carries a number.
func (c ColumnSpec) Numeric() bool {
	return c.Kind != KindCategorical
}

// Label is the human readable column name, e.g. "Systolic BP".
func (c ColumnSpec) Label() string {
	// Casers carry state and must not be shared between goroutines.
	titler := cases.Title(language.English)
	words := strings.Split(c.Name, "_")
	for i, word := range words {
		if acronyms[word] {
			words[i] = strings.ToUpper(word)
			continue
		}
		words[i] = titler.String(word)
	}
	return strings.Join(words, " ")
}

// Canonical returns the declared category matching value case-insensitively.
func (c ColumnSpec) Canonical(value string) (string, bool) {
	folder := cases.Fold()
	folded := folder.String(strings.TrimSpace(value))
	for _, category := range c.Categories {
		if folder.String(category) == folded {
			return category, true
		}
	}
	return "", false
}

// InRange reports whether a numeric value lies inside the column bounds.
func (c ColumnSpec) InRange(value float64) bool {
	return value >= c.Min && value <= c.Max
}

var acronyms = map[string]bool{"bmi": true, "bp": true}

var schema = []ColumnSpec{
	{Name: "age", Kind: KindInteger, Min: 1, Max: 120},
	{Name: "gender", Kind: KindCategorical, Categories: []string{"Male", "Female"}},
	{Name: "weight", Kind: KindInteger, Min: 1, Max: 300},
	{Name: "height", Kind: KindInteger, Min: 50, Max: 250},
	{Name: "bmi", Kind: KindFloat, Min: 10, Max: 60},
	{Name: "smoking", Kind: KindCategorical, Categories: []string{"Never", "Current", "Former"}},
	{Name: "alcohol_intake", Kind: KindCategorical, Categories: []string{"unknown", "Low", "Moderate", "High"}},
	{Name: "physical_activity", Kind: KindCategorical, Categories: []string{"Sedentary", "Active", "Moderate"}},
	{Name: "diet", Kind: KindCategorical, Categories: []string{"Healthy", "Average", "Unhealthy"}},
	{Name: "stress_level", Kind: KindCategorical, Categories: []string{"Low", "Medium", "High"}},
	{Name: "hypertension", Kind: KindFlag, Min: 0, Max: 1},
	{Name: "diabetes", Kind: KindFlag, Min: 0, Max: 1},
	{Name: "hyperlipidemia", Kind: KindFlag, Min: 0, Max: 1},
	{Name: "family_history", Kind: KindFlag, Min: 0, Max: 1},
	{Name: "previous_heart_attack", Kind: KindFlag, Min: 0, Max: 1},
	{Name: "systolic_bp", Kind: KindInteger, Min: 50, Max: 250},
	{Name: "diastolic_bp", Kind: KindInteger, Min: 30, Max: 200},
	{Name: "heart_rate", Kind: KindInteger, Min: 30, Max: 220},
	{Name: "blood_sugar_fasting", Kind: KindInteger, Min: 40, Max: 400},
	{Name: "cholesterol_total", Kind: KindInteger, Min: 80, Max: 400},
}

var schemaIndex = func() map[string]int {
	index := make(map[string]int, len(schema))
	for i, spec := range schema {
		index[spec.Name] = i
	}
	return index
}()

// Schema returns the ordered input columns the classifier was trained on.
func Schema() []ColumnSpec {
	specs := make([]ColumnSpec, len(schema))
	for i, spec := range schema {
		spec.Categories = append([]string(nil), spec.Categories...)
		specs[i] = spec
	}
	return specs
}

// FeatureNames returns the column names in training order.
func FeatureNames() []string {
	names := make([]string, len(schema))
	for i, spec := range schema {
		names[i] = spec.Name
	}
	return names
}

// LookupColumn finds the spec for a column name.
func LookupColumn(name string) (ColumnSpec, bool) {
	idx, ok := schemaIndex[name]
	if !ok {
		return ColumnSpec{}, false
	}
	return schema[idx], true
}
