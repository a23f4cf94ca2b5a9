package weather

import (
	"errors"
	"fmt"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	"github.com/tidwall/gjson"
)

const (
	// HoursAhead is the number of hourly slots emitted (current hour included).
	HoursAhead = domain.TelemetryHours

	// ForecastDays is the number of days requested from the provider.
	ForecastDays = 2

	// DefaultCrop is the crop reported when none is configured.
	DefaultCrop = "Rau muống"
)

var (
	// ErrInvalidPayload is returned when the provider body is not valid JSON.
	ErrInvalidPayload = errors.New("invalid forecast payload")

	// ErrProviderError is returned when the provider body is an error envelope.
	ErrProviderError = errors.New("weather provider error")
)

// BuildInput carries everything BuildTelemetry needs besides the body.
type BuildInput struct {
	Location   string
	Crop       string
	Translator *Translator
	Now        time.Time
}

// hourEntry is one element of the combined current+forecast hour list.
type hourEntry struct {
	temp      gjson.Result
	humidity  gjson.Result
	condition string
}

// =============================================================================
// Telemetry Building (Pure Functions)
// =============================================================================

// BuildTelemetry flattens a WeatherAPI forecast.json body into telemetry.
//
// The hour list starts with a pseudo-hour made from "current" (when present),
// followed by every forecast hour in order. The first HoursAhead entries fill
// the hour slots; missing slots stay empty. Day summaries are only set when the
// forecast covers that day.
func BuildTelemetry(raw []byte, in BuildInput) (domain.Telemetry, error) {
	if !gjson.ValidBytes(raw) {
		return domain.Telemetry{}, ErrInvalidPayload
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return domain.Telemetry{}, ErrInvalidPayload
	}

	if msg := root.Get("error.message"); msg.Exists() {
		return domain.Telemetry{}, fmt.Errorf("%w: %s", ErrProviderError, msg.String())
	}

	tr := in.Translator
	if tr == nil {
		tr = NewTranslator()
	}
	crop := in.Crop
	if crop == "" {
		crop = DefaultCrop
	}

	current := root.Get("current")
	currentCondition := current.Get("condition.text").String()

	t := domain.Telemetry{
		Time:        in.Now.UTC().Format(domain.TelemetryTimeLayout),
		Location:    in.Location,
		Temperature: number(current.Get("temp_c")),
		Humidity:    number(current.Get("humidity")),
		WeatherDesc: tr.Translate(currentCondition),
		Crop:        crop,
	}

	hours := make([]hourEntry, 0, 49)
	if isNonEmptyObject(current) {
		hours = append(hours, hourEntry{
			temp:      current.Get("temp_c"),
			humidity:  current.Get("humidity"),
			condition: currentCondition,
		})
	}

	days := forecastDays(root)
	for _, day := range days {
		for _, h := range arrayOf(day.Get("hour")) {
			hours = append(hours, hourEntry{
				temp:      h.Get("temp_c"),
				humidity:  h.Get("humidity"),
				condition: h.Get("condition.text").String(),
			})
		}
	}

	for i := 0; i < HoursAhead && i < len(hours); i++ {
		h := hours[i]
		t.Hours[i] = domain.HourSlot{
			Present:     true,
			Temperature: number(h.temp),
			Humidity:    number(h.humidity),
			WeatherDesc: tr.Translate(h.condition),
		}
	}

	if len(days) >= 1 {
		t.Today = daySummary(days[0].Get("day"), tr)
	}
	if len(days) >= 2 {
		t.Tomorrow = daySummary(days[1].Get("day"), tr)
	}

	return t, nil
}

func daySummary(day gjson.Result, tr *Translator) *domain.DaySummary {
	return &domain.DaySummary{
		WeatherDesc: tr.Translate(day.Get("condition.text").String()),
		MaxTemp:     number(day.Get("maxtemp_c")),
		MinTemp:     number(day.Get("mintemp_c")),
	}
}

func forecastDays(root gjson.Result) []gjson.Result {
	return arrayOf(root.Get("forecast.forecastday"))
}

// arrayOf returns the elements of r, or nil when r is not an array.
func arrayOf(r gjson.Result) []gjson.Result {
	if !r.IsArray() {
		return nil
	}
	return r.Array()
}

func isNonEmptyObject(r gjson.Result) bool {
	if !r.IsObject() {
		return false
	}
	empty := true
	r.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return !empty
}

// number returns a pointer to the numeric value of r, or nil when r is not a number.
func number(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}
