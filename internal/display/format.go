// Package display turns pipeline outcomes into the texts and view state
// clients render.
package display

import (
	"strconv"

	"github.com/kjstillabower/uv-alert-service/internal/models"
	"github.com/kjstillabower/uv-alert-service/internal/uvindex"
)

const defaultGlyph = "🌍"

// glyphs maps AccuWeather weather-icon codes to a single display glyph.
var glyphs = map[int]string{
	1: "☀", 2: "🌤", 3: "⛅", 4: "🌤", 5: "🌤", 6: "🌥", 7: "☁", 8: "☁",
	11: "🌫", 12: "🌧", 13: "🌦", 14: "🌦", 15: "⛈", 16: "⛈", 17: "⛈",
	18: "🌧", 19: "🌧", 20: "🌦", 21: "🌦", 22: "🌧", 23: "🌧",
	24: "❄", 25: "🌨", 26: "🌧", 29: "🌧", 30: "🔥", 31: "❄", 32: "🌬",
	33: "🌕", 34: "🌗", 35: "🌔", 36: "🌔", 37: "🌫", 38: "☁",
	39: "🌧", 40: "🌧", 41: "⛈", 42: "⛈", 43: "🌘",
}

// Glyph returns the glyph for an icon code, a globe for unmapped codes.
func Glyph(icon int) string {
	if g, ok := glyphs[icon]; ok {
		return g
	}
	return defaultGlyph
}

// ConditionsLine renders e.g. "21ºC ☁Porto, PT".
func ConditionsLine(place models.PlaceKey, c models.ConditionsSnapshot) string {
	return strconv.Itoa(c.TemperatureCelsius) + "ºC " + Glyph(c.WeatherIcon) + place.CityName + ", " + place.CountryCode
}

// UVLine renders e.g. "UV level: 6 (High)" using the provider's label,
// or the local category label when the provider sent none.
func UVLine(c models.ConditionsSnapshot) string {
	label := c.UVIndexLabel
	if label == "" {
		label = uvindex.Classify(c.UVIndex).String()
	}
	return "UV level: " + strconv.Itoa(c.UVIndex) + " (" + label + ")"
}

// MoreInfo is the "more info" dialog content for an index.
type MoreInfo struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Advisory string `json:"advisory"`
}

// MoreInfoFor builds the dialog for index. label is the provider's UV text;
// when empty the category label is used.
func MoreInfoFor(index int, label string) MoreInfo {
	cat := uvindex.Classify(index)
	if label == "" {
		label = cat.String()
	}
	return MoreInfo{
		Index:    index,
		Category: cat.Slug(),
		Title:    label + " UV Index",
		Advisory: cat.Advisory(),
	}
}
