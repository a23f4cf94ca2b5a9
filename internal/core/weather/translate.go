package weather

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Condition Translation (Pure Functions)
// =============================================================================

// builtinConditions maps WeatherAPI condition texts (normalized) to Vietnamese.
// WeatherAPI reports "nearby" or "possible" variants depending on API version,
// both are listed.
var builtinConditions = map[string]string{
	"sunny":                                       "Nắng",
	"clear":                                       "Trời quang",
	"partly cloudy":                               "Có mây rải rác",
	"cloudy":                                      "Nhiều mây",
	"overcast":                                    "U ám",
	"mist":                                        "Sương mù nhẹ",
	"fog":                                         "Sương mù",
	"freezing fog":                                "Sương mù giá",
	"patchy rain possible":                        "Có thể có mưa rải rác",
	"patchy rain nearby":                          "Có thể có mưa rải rác",
	"patchy snow possible":                        "Có thể có tuyết rải rác",
	"patchy snow nearby":                          "Có thể có tuyết rải rác",
	"patchy sleet possible":                       "Có thể có mưa tuyết rải rác",
	"patchy sleet nearby":                         "Có thể có mưa tuyết rải rác",
	"patchy freezing drizzle possible":            "Có thể có mưa phùn giá rải rác",
	"patchy freezing drizzle nearby":              "Có thể có mưa phùn giá rải rác",
	"thundery outbreaks possible":                 "Có thể có dông",
	"thundery outbreaks in nearby":                "Có thể có dông",
	"blowing snow":                                "Tuyết thổi",
	"blizzard":                                    "Bão tuyết",
	"patchy light drizzle":                        "Mưa phùn nhẹ rải rác",
	"light drizzle":                               "Mưa phùn nhẹ",
	"freezing drizzle":                            "Mưa phùn giá",
	"heavy freezing drizzle":                      "Mưa phùn giá nặng hạt",
	"patchy light rain":                           "Mưa nhẹ rải rác",
	"light rain":                                  "Mưa nhẹ",
	"moderate rain at times":                      "Thỉnh thoảng mưa vừa",
	"moderate rain":                               "Mưa vừa",
	"heavy rain at times":                         "Thỉnh thoảng mưa to",
	"heavy rain":                                  "Mưa to",
	"light freezing rain":                         "Mưa giá nhẹ",
	"moderate or heavy freezing rain":             "Mưa giá vừa đến to",
	"light sleet":                                 "Mưa tuyết nhẹ",
	"moderate or heavy sleet":                     "Mưa tuyết vừa đến to",
	"patchy light snow":                           "Tuyết nhẹ rải rác",
	"light snow":                                  "Tuyết nhẹ",
	"patchy moderate snow":                        "Tuyết vừa rải rác",
	"moderate snow":                               "Tuyết vừa",
	"patchy heavy snow":                           "Tuyết dày rải rác",
	"heavy snow":                                  "Tuyết dày",
	"ice pellets":                                 "Mưa đá nhỏ",
	"light rain shower":                           "Mưa rào nhẹ",
	"moderate or heavy rain shower":               "Mưa rào vừa đến to",
	"torrential rain shower":                      "Mưa rào xối xả",
	"light sleet showers":                         "Mưa tuyết rào nhẹ",
	"moderate or heavy sleet showers":             "Mưa tuyết rào vừa đến to",
	"light snow showers":                          "Tuyết rào nhẹ",
	"moderate or heavy snow showers":              "Tuyết rào vừa đến dày",
	"light showers of ice pellets":                "Mưa đá nhỏ rải rác",
	"moderate or heavy showers of ice pellets":    "Mưa đá vừa đến to",
	"patchy light rain with thunder":              "Mưa nhẹ rải rác kèm sấm sét",
	"patchy light rain in area with thunder":      "Mưa nhẹ rải rác kèm sấm sét",
	"moderate or heavy rain with thunder":         "Mưa vừa đến to kèm sấm sét",
	"moderate or heavy rain in area with thunder": "Mưa vừa đến to kèm sấm sét",
	"patchy light snow with thunder":              "Tuyết nhẹ rải rác kèm sấm sét",
	"patchy light snow in area with thunder":      "Tuyết nhẹ rải rác kèm sấm sét",
	"moderate or heavy snow with thunder":         "Tuyết vừa đến dày kèm sấm sét",
	"moderate or heavy snow in area with thunder": "Tuyết vừa đến dày kèm sấm sét",
}

// Translator maps provider condition text to Vietnamese.
// A Translator is immutable and safe for concurrent use.
type Translator struct {
	table map[string]string
}

// NewTranslator returns a translator backed by the built-in table.
func NewTranslator() *Translator {
	return &Translator{table: builtinConditions}
}

// WithOverrides returns a new translator where entries of overrides take
// precedence over the receiver's table. Override keys are normalized the
// same way lookups are.
func (t *Translator) WithOverrides(overrides map[string]string) *Translator {
	table := make(map[string]string, len(t.table)+len(overrides))
	for k, v := range t.table {
		table[k] = v
	}
	for k, v := range overrides {
		key := normalizeCondition(k)
		if key == "" {
			continue
		}
		table[key] = v
	}
	return &Translator{table: table}
}

// Translate returns the Vietnamese text for a condition.
// Unknown conditions are returned trimmed but otherwise unchanged.
func (t *Translator) Translate(text string) string {
	key := normalizeCondition(text)
	if key == "" {
		return ""
	}
	if vi, ok := t.table[key]; ok {
		return vi
	}
	return strings.TrimSpace(text)
}

// Len returns the number of known conditions.
func (t *Translator) Len() int {
	return len(t.table)
}

// ParseOverrides parses a YAML document of "english: vietnamese" pairs.
func ParseOverrides(data []byte) (map[string]string, error) {
	overrides := make(map[string]string)
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse condition overrides: %w", err)
	}
	return overrides, nil
}

// normalizeCondition lowercases and collapses whitespace.
func normalizeCondition(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
