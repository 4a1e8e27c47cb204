package http

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"heartrisk/ml"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// leftColumnFields is how many inputs go into the first form column.
const leftColumnFields = 10

var pageTemplates = map[string]*template.Template{
	"home":    parsePage("templates/home.html"),
	"predict": parsePage("templates/predict.html"),
}

func parsePage(page string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", page))
}

func renderPage(w io.Writer, name string, data any) error {
	tmpl, ok := pageTemplates[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

type homePage struct {
	Tab        string
	ModelReady bool
	LoadError  string
}

type formField struct {
	Name    string
	Label   string
	Min     string
	Max     string
	Step    string
	Options []string
	Value   string
	Error   string
}

type previewRow struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
	Error string `json:"error,omitempty"`
}

type resultCard struct {
	Title       string
	Message     string
	Notice      string
	Probability string
	Percent     int
	HighRisk    bool
}

type predictPage struct {
	Tab        string
	ModelReady bool
	LoadError  string
	Columns    [][]formField
	Preview    []previewRow
	Error      string
	Result     *resultCard
}

func newPredictPage(values, fieldErrors map[string]string) predictPage {
	fields := make([]formField, 0, len(ml.FeatureNames()))
	for _, spec := range ml.Schema() {
		field := formField{
			Name:  spec.Name,
			Label: spec.Label(),
			Value: values[spec.Name],
			Error: fieldErrors[spec.Name],
		}
		if spec.Numeric() {
			field.Min = formatBound(spec, spec.Min)
			field.Max = formatBound(spec, spec.Max)
			field.Step = "1"
			if spec.Kind == ml.KindFloat {
				field.Step = "0.01"
			}
		} else {
			field.Options = spec.Categories
		}
		fields = append(fields, field)
	}
	return predictPage{
		Tab:        "predict",
		ModelReady: true,
		Columns:    [][]formField{fields[:leftColumnFields], fields[leftColumnFields:]},
		Preview:    buildPreview(values).Rows,
	}
}

func newResultCard(result ml.PredictionResult) *resultCard {
	card := &resultCard{
		Probability: fmt.Sprintf("%.2f", result.Probability),
		Percent:     result.Percent(),
		HighRisk:    result.HighRisk(),
	}
	if card.HighRisk {
		card.Title = "High Risk"
		card.Message = "Model indicates elevated risk for heart disease. Consult a clinician."
		card.Notice = "This is a predictive model, not a diagnosis. See a professional for medical advice."
	} else {
		card.Title = "Low Risk"
		card.Message = "Model indicates low risk. Maintain healthy habits!"
		card.Notice = "Keep up the healthy lifestyle!"
	}
	return card
}

func formatBound(spec ml.ColumnSpec, value float64) string {
	if spec.Kind == ml.KindFloat {
		return strconv.FormatFloat(value, 'f', 1, 64)
	}
	return strconv.Itoa(int(value))
}
