// Package parser decodes AccuWeather payloads into typed records.
// Malformed input of any shape yields an *Error; decoding never panics.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kjstillabower/uv-alert-service/internal/models"
)

var (
	ErrMalformedJSON = errors.New("malformed json")
	ErrMissingField  = errors.New("missing field")
	ErrWrongType     = errors.New("wrong type")
	ErrEmptyArray    = errors.New("no conditions available")
)

// Error is a parse failure. Err is one of the package sentinels; Field is the
// dotted path of the offending field, empty for document-level failures.
type Error struct {
	Field string
	Err   error
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("parse: ")
	b.WriteString(e.Err.Error())
	if e.Field != "" {
		b.WriteString(" ")
		b.WriteString(e.Field)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ParsePlaceResolution decodes a geoposition-search response.
func ParsePlaceResolution(raw []byte) (models.PlaceKey, error) {
	doc, err := decode(raw)
	if err != nil {
		return models.PlaceKey{}, err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return models.PlaceKey{}, &Error{Err: ErrWrongType, Cause: fmt.Errorf("expected object, got %s", typeName(doc))}
	}

	key, err := stringField(obj, "Key")
	if err != nil {
		return models.PlaceKey{}, err
	}
	city, err := stringField(obj, "LocalizedName")
	if err != nil {
		return models.PlaceKey{}, err
	}
	country, err := stringField(obj, "Country", "ID")
	if err != nil {
		return models.PlaceKey{}, err
	}
	return models.PlaceKey{Key: key, CityName: city, CountryCode: country}, nil
}

// ParseConditions decodes a current-conditions response. Only the first
// element of the array is used; the provider returns one current reading.
func ParseConditions(raw []byte) (models.ConditionsSnapshot, error) {
	doc, err := decode(raw)
	if err != nil {
		return models.ConditionsSnapshot{}, err
	}
	arr, ok := doc.([]any)
	if !ok {
		return models.ConditionsSnapshot{}, &Error{Err: ErrWrongType, Cause: fmt.Errorf("expected array, got %s", typeName(doc))}
	}
	if len(arr) == 0 {
		return models.ConditionsSnapshot{}, &Error{Err: ErrEmptyArray}
	}
	obj, ok := arr[0].(map[string]any)
	if !ok {
		return models.ConditionsSnapshot{}, &Error{Field: "[0]", Err: ErrWrongType, Cause: fmt.Errorf("expected object, got %s", typeName(arr[0]))}
	}

	var s models.ConditionsSnapshot
	if s.UVIndex, err = intField(obj, "UVIndex"); err != nil {
		return models.ConditionsSnapshot{}, err
	}
	if !s.Valid() {
		return models.ConditionsSnapshot{}, &Error{Field: "UVIndex", Err: ErrWrongType, Cause: fmt.Errorf("index %d below %d", s.UVIndex, models.UnknownUVIndex)}
	}
	if s.UVIndexLabel, err = stringField(obj, "UVIndexText"); err != nil {
		return models.ConditionsSnapshot{}, err
	}
	if s.WeatherText, err = stringField(obj, "WeatherText"); err != nil {
		return models.ConditionsSnapshot{}, err
	}
	if s.WeatherIcon, err = intField(obj, "WeatherIcon"); err != nil {
		return models.ConditionsSnapshot{}, err
	}
	temp, err := numberField(obj, "Temperature", "Metric", "Value")
	if err != nil {
		return models.ConditionsSnapshot{}, err
	}
	s.TemperatureCelsius = int(math.Round(temp))
	return s, nil
}

func decode(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &Error{Err: ErrMalformedJSON, Cause: errors.New("empty body")}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Err: ErrMalformedJSON, Cause: err}
	}
	if dec.More() {
		return nil, &Error{Err: ErrMalformedJSON, Cause: errors.New("trailing data after document")}
	}
	return doc, nil
}

// lookupPath walks nested objects. A JSON null counts as missing.
func lookupPath(obj map[string]any, path ...string) (any, error) {
	var cur any = obj
	for i, name := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, &Error{Field: strings.Join(path[:i], "."), Err: ErrWrongType, Cause: fmt.Errorf("expected object, got %s", typeName(cur))}
		}
		v, ok := m[name]
		if !ok || v == nil {
			return nil, &Error{Field: strings.Join(path[:i+1], "."), Err: ErrMissingField}
		}
		cur = v
	}
	return cur, nil
}

func stringField(obj map[string]any, path ...string) (string, error) {
	v, err := lookupPath(obj, path...)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{Field: strings.Join(path, "."), Err: ErrWrongType, Cause: fmt.Errorf("expected string, got %s", typeName(v))}
	}
	return s, nil
}

func numberField(obj map[string]any, path ...string) (float64, error) {
	v, err := lookupPath(obj, path...)
	if err != nil {
		return 0, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, &Error{Field: strings.Join(path, "."), Err: ErrWrongType, Cause: fmt.Errorf("expected number, got %s", typeName(v))}
	}
	f, err := n.Float64()
	if err != nil {
		return 0, &Error{Field: strings.Join(path, "."), Err: ErrWrongType, Cause: err}
	}
	return f, nil
}

// intField accepts integral numbers only; 6.5 is a wrong type for an index.
func intField(obj map[string]any, path ...string) (int, error) {
	v, err := lookupPath(obj, path...)
	if err != nil {
		return 0, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, &Error{Field: strings.Join(path, "."), Err: ErrWrongType, Cause: fmt.Errorf("expected integer, got %s", typeName(v))}
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, &Error{Field: strings.Join(path, "."), Err: ErrWrongType, Cause: fmt.Errorf("expected integer, got %s", n.String())}
		}
		i = int64(f)
	}
	return int(i), nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
