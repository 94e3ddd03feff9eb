package models

import "time"

// Coordinates is a geographic position captured from the location provider.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PlaceKey is the provider location resolved from Coordinates.
// Key is opaque and only used to address the current-conditions endpoint.
type PlaceKey struct {
	Key         string `json:"key"`
	CityName    string `json:"cityName"`
	CountryCode string `json:"countryCode"`
}

// UnknownUVIndex marks a reading whose UV index is not available.
const UnknownUVIndex = -1

// ConditionsSnapshot is one point-in-time reading. A new fetch replaces it wholesale.
type ConditionsSnapshot struct {
	UVIndex            int    `json:"uvIndex"`
	UVIndexLabel       string `json:"uvIndexLabel"`
	WeatherText        string `json:"weatherText"`
	WeatherIcon        int    `json:"weatherIcon"`
	TemperatureCelsius int    `json:"temperatureCelsius"`
}

// Valid reports whether the snapshot carries a usable UV index (>= -1).
func (s ConditionsSnapshot) Valid() bool {
	return s.UVIndex >= UnknownUVIndex
}

// Reading is the immutable result of one successful pipeline run.
type Reading struct {
	Coordinates Coordinates        `json:"coordinates"`
	Place       PlaceKey           `json:"place"`
	Conditions  ConditionsSnapshot `json:"conditions"`
	FetchedAt   time.Time          `json:"fetchedAt"`
}
