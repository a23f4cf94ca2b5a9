// Package domain defines core domain types for agrotel.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Telemetry Types
// =============================================================================

// TelemetryHours is the number of hourly slots every telemetry record carries.
const TelemetryHours = 7

// TelemetryTimeLayout is the timestamp layout of the "time" key.
// UTC with microsecond precision and a literal Z suffix.
const TelemetryTimeLayout = "2006-01-02T15:04:05.000000Z"

// ErrInvalidTelemetry is returned when a flat telemetry payload cannot be decoded.
var ErrInvalidTelemetry = errors.New("invalid telemetry payload")

// Telemetry is one weather reading for a crop field, including the next
// hours and the daily summaries. It serializes to the flat key layout the
// IoT platform expects (hour_0_temperature, weather_today_max, ...).
type Telemetry struct {
	// Time is the fetch time formatted with TelemetryTimeLayout.
	Time string

	// Location is the WeatherAPI query the reading was taken for.
	Location string

	// Temperature in Celsius. Nil when the provider omitted it.
	Temperature *float64

	// Humidity in percent. Nil when the provider omitted it.
	Humidity *float64

	// WeatherDesc is the translated condition text.
	WeatherDesc string

	// Crop is the crop planted at the location.
	Crop string

	// Hours are the current hour followed by forecast hours.
	Hours [TelemetryHours]HourSlot

	// Today and Tomorrow are nil when the forecast does not cover that day.
	Today    *DaySummary
	Tomorrow *DaySummary
}

// HourSlot is one hourly entry of the telemetry.
// A slot with Present=false serializes as nulls.
type HourSlot struct {
	Present     bool
	Temperature *float64
	Humidity    *float64
	WeatherDesc string
}

// DaySummary is the forecast summary of a single day.
type DaySummary struct {
	WeatherDesc string
	MaxTemp     *float64
	MinTemp     *float64
}

// FetchedAt parses the Time field.
func (t Telemetry) FetchedAt() (time.Time, error) {
	return time.Parse(TelemetryTimeLayout, t.Time)
}

// Flatten returns the flat key/value layout of the telemetry.
func (t Telemetry) Flatten() map[string]any {
	out := map[string]any{
		"time":         t.Time,
		"location":     t.Location,
		"temperature":  t.Temperature,
		"humidity":     t.Humidity,
		"weather_desc": t.WeatherDesc,
		"crop":         t.Crop,
	}

	for i, h := range t.Hours {
		prefix := fmt.Sprintf("hour_%d_", i)
		if !h.Present {
			out[prefix+"temperature"] = nil
			out[prefix+"humidity"] = nil
			out[prefix+"weather_desc"] = nil
			continue
		}
		out[prefix+"temperature"] = h.Temperature
		out[prefix+"humidity"] = h.Humidity
		out[prefix+"weather_desc"] = h.WeatherDesc
	}

	if t.Today != nil {
		out["weather_today_desc"] = t.Today.WeatherDesc
		out["weather_today_max"] = t.Today.MaxTemp
		out["weather_today_min"] = t.Today.MinTemp
	}
	if t.Tomorrow != nil {
		out["weather_tomorrow_desc"] = t.Tomorrow.WeatherDesc
		out["weather_tomorrow_max"] = t.Tomorrow.MaxTemp
		out["weather_tomorrow_min"] = t.Tomorrow.MinTemp
	}

	return out
}

// MarshalJSON encodes the telemetry in its flat layout.
func (t Telemetry) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Flatten())
}

// UnmarshalJSON decodes the flat layout produced by MarshalJSON.
func (t *Telemetry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTelemetry, err)
	}

	var out Telemetry
	out.Time, _ = raw["time"].(string)
	out.Location, _ = raw["location"].(string)
	out.Temperature = floatValue(raw["temperature"])
	out.Humidity = floatValue(raw["humidity"])
	out.WeatherDesc, _ = raw["weather_desc"].(string)
	out.Crop, _ = raw["crop"].(string)

	for i := range out.Hours {
		prefix := fmt.Sprintf("hour_%d_", i)
		desc, ok := raw[prefix+"weather_desc"].(string)
		if !ok {
			continue
		}
		out.Hours[i] = HourSlot{
			Present:     true,
			Temperature: floatValue(raw[prefix+"temperature"]),
			Humidity:    floatValue(raw[prefix+"humidity"]),
			WeatherDesc: desc,
		}
	}

	out.Today = daySummary(raw, "weather_today_")
	out.Tomorrow = daySummary(raw, "weather_tomorrow_")

	*t = out
	return nil
}

func daySummary(raw map[string]any, prefix string) *DaySummary {
	desc, ok := raw[prefix+"desc"]
	if !ok {
		return nil
	}
	s, _ := desc.(string)
	return &DaySummary{
		WeatherDesc: s,
		MaxTemp:     floatValue(raw[prefix+"max"]),
		MinTemp:     floatValue(raw[prefix+"min"]),
	}
}

func floatValue(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

// Float returns a pointer to v. Handy for building telemetry in tests and fixtures.
func Float(v float64) *float64 {
	return &v
}
