package weather

import (
	"os"
	"testing"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var fixedNow = time.Date(2026, 10, 14, 3, 4, 5, 123456000, time.UTC)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/forecast.json")
	require.NoError(t, err)
	return data
}

func defaultInput() BuildInput {
	return BuildInput{
		Location:   "Hanoi",
		Translator: NewTranslator(),
		Now:        fixedNow,
	}
}

// =============================================================================
// BuildTelemetry Tests
// =============================================================================

func TestBuildTelemetry_CurrentFields(t *testing.T) {
	tel, err := BuildTelemetry(loadFixture(t), defaultInput())
	require.NoError(t, err)

	assert.Equal(t, "2026-10-14T03:04:05.123456Z", tel.Time)
	assert.Equal(t, "Hanoi", tel.Location)
	assert.Equal(t, domain.Float(29.5), tel.Temperature)
	assert.Equal(t, domain.Float(84), tel.Humidity)
	assert.Equal(t, "Có mây rải rác", tel.WeatherDesc)
	assert.Equal(t, DefaultCrop, tel.Crop)
}

func TestBuildTelemetry_HourSlotsStartWithCurrent(t *testing.T) {
	tel, err := BuildTelemetry(loadFixture(t), defaultInput())
	require.NoError(t, err)

	wantDesc := []string{
		"Có mây rải rác",
		"Trời quang",
		"Sương mù nhẹ",
		"Sương mù",
		"Mưa nhẹ",
		"Mưa vừa",
		"Squall line",
	}
	for i, want := range wantDesc {
		assert.True(t, tel.Hours[i].Present, "slot %d", i)
		assert.Equal(t, want, tel.Hours[i].WeatherDesc, "slot %d", i)
	}

	assert.Equal(t, domain.Float(29.5), tel.Hours[0].Temperature)
	assert.Equal(t, domain.Float(25.0), tel.Hours[1].Temperature)
	assert.Equal(t, domain.Float(96), tel.Hours[6].Humidity)
}

func TestBuildTelemetry_DaySummaries(t *testing.T) {
	tel, err := BuildTelemetry(loadFixture(t), defaultInput())
	require.NoError(t, err)

	require.NotNil(t, tel.Today)
	assert.Equal(t, "Có thể có mưa rải rác", tel.Today.WeatherDesc)
	assert.Equal(t, domain.Float(32.1), tel.Today.MaxTemp)
	assert.Equal(t, domain.Float(24.3), tel.Today.MinTemp)

	require.NotNil(t, tel.Tomorrow)
	assert.Equal(t, "Mưa to", tel.Tomorrow.WeatherDesc)
	assert.Equal(t, domain.Float(30.0), tel.Tomorrow.MaxTemp)
}

func TestBuildTelemetry_NoCurrent(t *testing.T) {
	body := []byte(`{"forecast":{"forecastday":[{"day":{"maxtemp_c":31},"hour":[
		{"temp_c":26,"humidity":80,"condition":{"text":"Sunny"}}
	]}]}}`)

	tel, err := BuildTelemetry(body, defaultInput())
	require.NoError(t, err)

	assert.Nil(t, tel.Temperature)
	assert.Nil(t, tel.Humidity)
	assert.Equal(t, "", tel.WeatherDesc)

	// First slot comes from the forecast when current is absent.
	assert.True(t, tel.Hours[0].Present)
	assert.Equal(t, "Nắng", tel.Hours[0].WeatherDesc)
	for i := 1; i < HoursAhead; i++ {
		assert.False(t, tel.Hours[i].Present, "slot %d", i)
	}

	require.NotNil(t, tel.Today)
	assert.Equal(t, "", tel.Today.WeatherDesc)
	assert.Nil(t, tel.Today.MinTemp)
	assert.Nil(t, tel.Tomorrow)
}

func TestBuildTelemetry_EmptyCurrentIsSkipped(t *testing.T) {
	body := []byte(`{"current":{},"forecast":{"forecastday":[]}}`)

	tel, err := BuildTelemetry(body, defaultInput())
	require.NoError(t, err)

	for i := 0; i < HoursAhead; i++ {
		assert.False(t, tel.Hours[i].Present)
	}
	assert.Nil(t, tel.Today)
	assert.Nil(t, tel.Tomorrow)
}

func TestBuildTelemetry_CurrentOnly(t *testing.T) {
	body := []byte(`{"current":{"temp_c":30,"condition":{"text":"Overcast"}}}`)

	tel, err := BuildTelemetry(body, defaultInput())
	require.NoError(t, err)

	assert.True(t, tel.Hours[0].Present)
	assert.Equal(t, "U ám", tel.Hours[0].WeatherDesc)
	assert.Nil(t, tel.Hours[0].Humidity)
	assert.False(t, tel.Hours[1].Present)
}

func TestBuildTelemetry_CustomCrop(t *testing.T) {
	in := defaultInput()
	in.Crop = "Cải xanh"

	tel, err := BuildTelemetry(loadFixture(t), in)
	require.NoError(t, err)
	assert.Equal(t, "Cải xanh", tel.Crop)
}

func TestBuildTelemetry_NilTranslatorUsesBuiltin(t *testing.T) {
	in := defaultInput()
	in.Translator = nil

	tel, err := BuildTelemetry(loadFixture(t), in)
	require.NoError(t, err)
	assert.Equal(t, "Có mây rải rác", tel.WeatherDesc)
}

func TestBuildTelemetry_InvalidJSON(t *testing.T) {
	_, err := BuildTelemetry([]byte(`<html>bad gateway</html>`), defaultInput())
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBuildTelemetry_NonObject(t *testing.T) {
	_, err := BuildTelemetry([]byte(`[1,2,3]`), defaultInput())
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBuildTelemetry_ProviderErrorEnvelope(t *testing.T) {
	body := []byte(`{"error":{"code":1006,"message":"No matching location found."}}`)

	_, err := BuildTelemetry(body, defaultInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderError)
	assert.Contains(t, err.Error(), "No matching location found.")
}

func TestBuildTelemetry_NonNumericValuesAreNil(t *testing.T) {
	body := []byte(`{"current":{"temp_c":"hot","humidity":null,"condition":{"text":"Sunny"}}}`)

	tel, err := BuildTelemetry(body, defaultInput())
	require.NoError(t, err)
	assert.Nil(t, tel.Temperature)
	assert.Nil(t, tel.Humidity)
}
