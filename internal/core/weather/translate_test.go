package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate_Known(t *testing.T) {
	tr := NewTranslator()

	tests := []struct {
		in   string
		want string
	}{
		{"Sunny", "Nắng"},
		{"Partly cloudy", "Có mây rải rác"},
		{"Patchy rain nearby", "Có thể có mưa rải rác"},
		{"Patchy rain possible", "Có thể có mưa rải rác"},
		{"Moderate or heavy rain with thunder", "Mưa vừa đến to kèm sấm sét"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Translate(tt.in))
		})
	}
}

func TestTranslate_IgnoresCaseAndWhitespace(t *testing.T) {
	tr := NewTranslator()
	assert.Equal(t, "Mưa nhẹ", tr.Translate("  LIGHT   rain "))
}

func TestTranslate_UnknownReturnedTrimmed(t *testing.T) {
	tr := NewTranslator()
	assert.Equal(t, "Volcanic ash", tr.Translate(" Volcanic ash "))
}

func TestTranslate_Empty(t *testing.T) {
	tr := NewTranslator()
	assert.Equal(t, "", tr.Translate(""))
	assert.Equal(t, "", tr.Translate("   "))
}

func TestWithOverrides_TakesPrecedence(t *testing.T) {
	base := NewTranslator()
	tr := base.WithOverrides(map[string]string{
		"Sunny":        "Trời nắng",
		"Volcanic Ash": "Tro núi lửa",
		"   ":          "ignored",
	})

	assert.Equal(t, "Trời nắng", tr.Translate("sunny"))
	assert.Equal(t, "Tro núi lửa", tr.Translate("volcanic ash"))
	assert.Equal(t, base.Len()+1, tr.Len())

	// The base translator is untouched.
	assert.Equal(t, "Nắng", base.Translate("Sunny"))
}

func TestParseOverrides(t *testing.T) {
	data := []byte("Sunny: Trời nắng\n\"Light rain\": Mưa lất phất\n")

	overrides, err := ParseOverrides(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Sunny":      "Trời nắng",
		"Light rain": "Mưa lất phất",
	}, overrides)
}

func TestParseOverrides_Invalid(t *testing.T) {
	_, err := ParseOverrides([]byte("- not\n- a map\n"))
	assert.Error(t, err)
}
