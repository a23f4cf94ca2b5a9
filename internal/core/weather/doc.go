// Package weather provides pure functions for turning WeatherAPI forecasts
// into crop-field telemetry.
//
// This package contains the functional core logic of agrotel. All functions
// are pure (no I/O, no side effects): raw provider bytes go in, domain
// values come out.
//
// # Functions
//
//   - Translation: Map English condition text to Vietnamese (Translator, ParseOverrides)
//   - Building: Flatten a forecast.json body into telemetry (BuildTelemetry)
//
// # Usage
//
// The imperative shell (internal/shell/weather) fetches the forecast over
// HTTP and hands the body to this package:
//
//	tr := weather.NewTranslator()
//	t, err := weather.BuildTelemetry(body, weather.BuildInput{
//	    Location:   "Hanoi",
//	    Crop:       weather.DefaultCrop,
//	    Translator: tr,
//	    Now:        time.Now(),
//	})
package weather
