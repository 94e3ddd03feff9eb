package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/uv-alert-service/internal/models"
)

// ErrCoordinatesMissing is returned when latitude or longitude is empty or whitespace-only.
var ErrCoordinatesMissing = errors.New("latitude and longitude are required")

// ErrCoordinateNotNumber is returned when a coordinate is not a finite decimal number.
var ErrCoordinateNotNumber = errors.New("coordinate must be a finite number")

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ParseCoordinates trims both inputs, parses them as decimal degrees and
// validates the result. Errors are suitable for 400 INVALID_COORDINATES responses.
func ParseCoordinates(lat, lon string) (models.Coordinates, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return models.Coordinates{}, ErrCoordinatesMissing
	}
	latV, err := parseDegrees(lat)
	if err != nil {
		return models.Coordinates{}, err
	}
	lonV, err := parseDegrees(lon)
	if err != nil {
		return models.Coordinates{}, err
	}
	c := models.Coordinates{Latitude: latV, Longitude: lonV}
	if err := ValidateCoordinates(c); err != nil {
		return models.Coordinates{}, err
	}
	return c, nil
}

// ValidateCoordinates enforces finite values within geographic bounds.
func ValidateCoordinates(c models.Coordinates) error {
	if !finite(c.Latitude) || !finite(c.Longitude) {
		return ErrCoordinateNotNumber
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrLatitudeOutOfRange
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

// parseDegrees accepts plain decimal notation only; hex floats, "Inf" and "NaN" are rejected.
func parseDegrees(s string) (float64, error) {
	for _, c := range s {
		if !isAllowedCoordinateRune(c) {
			return 0, ErrCoordinateNotNumber
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, ErrCoordinateNotNumber
	}
	return v, nil
}

func isAllowedCoordinateRune(r rune) bool {
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '-', '+', '.':
		return true
	}
	return false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
