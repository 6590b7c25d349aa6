// Package report renders a plant's current state as a plain-text care report.
package report

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	sprig "github.com/Masterminds/sprig/v3"

	"github.com/verdantlabs/sprout/internal/insight/compute"
	"github.com/verdantlabs/sprout/internal/stores"
	"github.com/verdantlabs/sprout/internal/tips"
)

// Data carries everything one report covers. Trend and Plan are optional;
// the template renders a fallback line when either is missing.
type Data struct {
	Plant       stores.Plant
	Trend       *compute.HealthTrendResult
	Plan        *compute.WateringPlan
	Tips        []tips.Tip
	Weather     stores.WeatherSnapshot
	GeneratedAt time.Time
}

const careReport = `CARE REPORT: {{ .Plant.Name | title }}
{{- if .Plant.Species }} ({{ .Plant.Species }}){{ end }}
Generated {{ .GeneratedAt | date "2006-01-02 15:04" }} UTC

Location: {{ .Plant.Location | default "unknown" }}
Weather:  {{ printf "%.1f" .Weather.TempC }}C, {{ printf "%.0f" .Weather.Humidity }}% humidity, {{ .Weather.Condition }}
{{ if .Trend }}
Health is {{ .Trend.Direction }} over {{ .Trend.Samples }} {{ .Trend.Samples | plural "observation" "observations" }}.
{{- else }}
No health observations recorded yet.
{{- end }}
{{- if .Plan }}
Water every {{ printf "%.1f" .Plan.IntervalDays }} days; next due {{ .Plan.NextDue | date "2006-01-02" }}.
{{- end }}
{{ if .Tips }}
Recommendations:
{{- range .Tips }}
  - {{ .Title }}: {{ .Description }}
{{- end }}
{{- else }}
No recommendations right now. Keep doing what you're doing.
{{- end }}
`

// Renderer executes the built-in report template. Safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer compiles the report template with the sprig function map.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("care-report").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(careReport)
	if err != nil {
		return nil, fmt.Errorf("report: compile template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the report text for one plant.
func (r *Renderer) Render(data Data) (string, error) {
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now().UTC()
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("report: render %q: %w", data.Plant.ID, err)
	}
	return buf.String(), nil
}
