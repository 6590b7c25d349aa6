// Package analysis provides the mocked image analysis the insight engine
// memoizes under the plant_analysis kind. Real model inference sits behind a
// remote service; until it lands the analyzer returns a deterministic mock
// result so the rest of the pipeline can be exercised end to end.
package analysis

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/verdantlabs/sprout/internal/stores"
)

// ErrNoImage indicates the request referenced neither an image URL nor inline data.
var ErrNoImage = errors.New("analysis: imageUrl or imageBase64 required")

// Request identifies the image to analyze. Exactly one of ImageURL or
// ImageBase64 must be set; PlantName is an optional hint.
type Request struct {
	ImageURL    string `json:"imageUrl,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	PlantName   string `json:"plantName,omitempty"`
}

// ImageRef returns a stable reference for the submitted image, used as the
// cache subject so repeated submissions of the same image share one result.
func (r Request) ImageRef() string {
	if r.ImageURL != "" {
		return r.ImageURL
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(r.ImageBase64))
	return fmt.Sprintf("inline:%016x", h.Sum64())
}

// Validate rejects requests with no image reference.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ImageURL) == "" && strings.TrimSpace(r.ImageBase64) == "" {
		return ErrNoImage
	}
	return nil
}

// Issue is one detected plant problem.
type Issue struct {
	Code       string  `json:"code"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

// Recommendation is one suggested remediation.
type Recommendation struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"desc"`
}

// Result is the analysis payload returned to callers and cached by the engine.
type Result struct {
	ID              string                 `json:"id"`
	Status          string                 `json:"status"`
	PlantName       string                 `json:"plantName"`
	Issues          []Issue                `json:"issues"`
	Score           float64                `json:"score"`
	Recommendations []Recommendation       `json:"recommendations"`
	WeatherSnapshot stores.WeatherSnapshot `json:"weatherSnapshot"`
	CreatedAt       string                 `json:"createdAt"`
}

// Analyzer produces mock analysis results.
type Analyzer struct {
	logger  *slog.Logger
	weather *stores.WeatherProvider
	now     func() time.Time
}

// NewAnalyzer constructs an analyzer that stamps results with readings from
// the supplied weather provider.
func NewAnalyzer(logger *slog.Logger, weather *stores.WeatherProvider) *Analyzer {
	return &Analyzer{
		logger:  logger,
		weather: weather,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the analyzer's clock. Intended for tests.
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

// Analyze validates the request and returns the mock result.
func (a *Analyzer) Analyze(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if a.logger != nil {
		a.logger.Debug("running mock analysis",
			slog.Bool("has_url", req.ImageURL != ""),
			slog.Bool("has_base64", req.ImageBase64 != ""))
	}

	name := req.PlantName
	if name == "" {
		name = "Monstera Deliciosa"
	}
	createdAt := a.now().Truncate(time.Second).Format(time.RFC3339)

	var weather stores.WeatherSnapshot
	if a.weather != nil {
		weather = a.weather.Current()
	}

	return Result{
		ID:        "analysis_mock_001",
		Status:    "completed",
		PlantName: name,
		Issues: []Issue{
			{Code: "yellow_leaf", Severity: "moderate", Confidence: 0.72},
		},
		Score: 0.85,
		Recommendations: []Recommendation{
			{
				ID:          "tip_water_adjust",
				Title:       "Reduce watering",
				Description: "Cut the watering frequency back to every 5 days.",
			},
			{
				ID:          "tip_light",
				Title:       "Add soft light",
				Description: "Place near a window with filtered morning light.",
			},
		},
		WeatherSnapshot: weather,
		CreatedAt:       createdAt,
	}, nil
}
