// Package uvindex maps UV index values to risk categories and their sun-safety advisories.
package uvindex

import "strconv"

// Category is a UV exposure risk level derived from the UV index.
type Category int

const (
	Unknown Category = iota
	Low
	Moderate
	High
	VeryHigh
	Extreme
)

// band is one row of the classification table. A band covers indices from
// lower up to (but excluding) the next band's lower bound.
type band struct {
	lower    int
	category Category
	label    string
	advisory string
}

const (
	unknownLabel    = "Unknown"
	unknownAdvisory = "Please check the UV levels."
)

// bands must stay sorted by lower bound.
var bands = []band{
	{0, Low, "Low", "A UV Index reading of 0 to 2 means low danger from the sun's UV rays for the average person.\n" +
		" - Wear sunglasses on bright days.\n" +
		" - If you burn easily, cover up and use broad spectrum SPF 30+ sunscreen.\n" +
		" - Watch out for bright surfaces, like sand, water and snow, which reflect UV and increase exposure."},
	{3, Moderate, "Moderate", "A UV Index reading of 3 to 5 means moderate risk of harm from unprotected sun exposure.\n" +
		" - Stay in shade near midday when the sun is strongest.\n" +
		" - If outdoors, wear protective clothing, a wide-brimmed hat, and UV-blocking sunglasses.\n" +
		" - Generously apply broad spectrum SPF 30+ sunscreen every 2 hours, even on cloudy days, and after swimming or sweating.\n" +
		" - Watch out for bright surfaces, like sand, water and snow, which reflect UV and increase exposure."},
	{6, High, "High", "A UV Index reading of 6 to 7 means high risk of harm from unprotected sun exposure. Protection against skin and eye damage is needed.\n" +
		" - Reduce time in the sun between 10 a.m. and 4 p.m.\n" +
		" - If outdoors, seek shade and wear protective clothing, a wide-brimmed hat, and UV-blocking sunglasses.\n" +
		" - Generously apply broad spectrum SPF 30+ sunscreen every 2 hours, even on cloudy days, and after swimming or sweating. - Watch out for bright surfaces, like sand, water and snow, which reflect UV and increase exposure."},
	{8, VeryHigh, "Very High", "A UV Index reading of 8 to 10 means very high risk of harm from unprotected sun exposure. Take extra precautions because unprotected skin and eyes will be damaged and can burn quickly.\n" +
		" - Minimize sun exposure between 10 a.m. and 4 p.m.\n" +
		" - If outdoors, seek shade and wear protective clothing, a wide-brimmed hat, and UV-blocking sunglasses.\n" +
		" - Generously apply broad spectrum SPF 30+ sunscreen every 2 hours, even on cloudy days, and after swimming or sweating.\n" +
		" - Watch out for bright surfaces, like sand, water and snow, which reflect UV and increase exposure."},
	{11, Extreme, "Extreme", "A UV Index reading of 11 or more means extreme risk of harm from unprotected sun exposure. Take all precautions because unprotected skin and eyes can burn in minutes.\n" +
		" - Try to avoid sun exposure between 10 a.m. and 4 p.m.\n" +
		" - If outdoors, seek shade and wear protective clothing, a wide-brimmed hat, and UV-blocking sunglasses.\n" +
		" - Generously apply broad spectrum SPF 30+ sunscreen every 2 hours, even on cloudy days, and after swimming or sweating.\n" +
		" - Watch out for bright surfaces, like sand, water and snow, which reflect UV and increase exposure."},
}

// Classify returns the risk category for a UV index. Every negative index is Unknown.
func Classify(uv int) Category {
	if uv < bands[0].lower {
		return Unknown
	}
	cat := bands[0].category
	for _, b := range bands[1:] {
		if uv < b.lower {
			break
		}
		cat = b.category
	}
	return cat
}

func lookup(c Category) (band, bool) {
	for _, b := range bands {
		if b.category == c {
			return b, true
		}
	}
	return band{}, false
}

// String returns the display label ("Low", "Very High", ...).
func (c Category) String() string {
	if b, ok := lookup(c); ok {
		return b.label
	}
	return unknownLabel
}

// Slug returns a stable lower-case identifier, used for metric labels and JSON.
func (c Category) Slug() string {
	switch c {
	case Low:
		return "low"
	case Moderate:
		return "moderate"
	case High:
		return "high"
	case VeryHigh:
		return "very_high"
	case Extreme:
		return "extreme"
	default:
		return "unknown"
	}
}

// Advisory returns the static sun-safety guidance for the category.
func (c Category) Advisory() string {
	if b, ok := lookup(c); ok {
		return b.advisory
	}
	return unknownAdvisory
}

// Risk is a category together with the index it was derived from.
type Risk struct {
	Index    int
	Category Category
}

// Assess classifies uv and keeps the index alongside the category.
func Assess(uv int) Risk {
	return Risk{Index: uv, Category: Classify(uv)}
}

// Label renders the short form used in notifications, e.g. "6 (High)".
func (r Risk) Label() string {
	if r.Category == Unknown {
		return unknownAdvisory
	}
	return strconv.Itoa(r.Index) + " (" + r.Category.String() + ")"
}
