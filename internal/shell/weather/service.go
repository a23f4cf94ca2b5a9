// Package weather fetches forecasts and turns them into telemetry.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	coreweather "github.com/artpar/agrotel/internal/core/weather"
	"github.com/artpar/agrotel/internal/shell/weatherapi"
)

// Service combines the WeatherAPI client with the pure telemetry builder.
type Service struct {
	fetcher    weatherapi.Fetcher
	translator *coreweather.Translator
	location   string
	crop       string
	now        func() time.Time
	logger     *slog.Logger
}

// Config holds fetch service configuration.
type Config struct {
	Location   string
	Crop       string
	Translator *coreweather.Translator
}

// NewService creates a new fetch service.
func NewService(f weatherapi.Fetcher, cfg Config, logger *slog.Logger) *Service {
	if cfg.Translator == nil {
		cfg.Translator = coreweather.NewTranslator()
	}
	if cfg.Crop == "" {
		cfg.Crop = coreweather.DefaultCrop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:    f,
		translator: cfg.Translator,
		location:   cfg.Location,
		crop:       cfg.Crop,
		now:        time.Now,
		logger:     logger.With("component", "weather"),
	}
}

// Location returns the configured location.
func (s *Service) Location() string {
	return s.location
}

// FetchTelemetry fetches the current forecast and builds telemetry from it.
func (s *Service) FetchTelemetry(ctx context.Context) (*domain.Telemetry, error) {
	now := s.now()

	body, err := s.fetcher.FetchForecast(ctx, s.location)
	if err != nil {
		s.logger.Error("fetch weatherapi forecast", "location", s.location, "error", err)
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	t, err := coreweather.BuildTelemetry(body, coreweather.BuildInput{
		Location:   s.location,
		Crop:       s.crop,
		Translator: s.translator,
		Now:        now,
	})
	if err != nil {
		s.logger.Error("fetch weatherapi forecast", "location", s.location, "error", err)
		return nil, fmt.Errorf("build telemetry: %w", err)
	}

	s.logger.Debug("telemetry fetched",
		"location", s.location,
		"temperature", t.Temperature,
		"weather_desc", t.WeatherDesc,
	)
	return &t, nil
}
