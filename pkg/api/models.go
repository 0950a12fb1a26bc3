package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// StationWithDistance associates a Station with a computed distance in meters.
type StationWithDistance struct {
	Station  *Station `json:"station"`
	Distance float64  `json:"distance"`
}

// Station is a single record of the station dataset. Every field is optional.
type Station struct {
	Type     Value     `json:"type"`
	ID       Value     `json:"id"`
	Nr       Value     `json:"nr"`
	Name     Value     `json:"name"`
	Address  *Address  `json:"address,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Address is the postal address of a station.
type Address struct {
	City    Value `json:"city"`
	Zipcode Value `json:"zipcode"`
	Street  Value `json:"street"`
}

// Location holds WGS84 coordinates.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// City returns the address city, absent when the station has no address.
func (s *Station) City() Value {
	if s.Address == nil {
		return Value{}
	}
	return s.Address.City
}

// Value is an optional scalar field. The zero Value is absent.
//
// JSON strings are kept verbatim, numbers are normalized to their shortest
// decimal form and booleans, objects and arrays keep their JSON text. A JSON
// null is treated as absent.
type Value struct {
	text  string
	valid bool
}

// StringValue returns a present Value holding s.
func StringValue(s string) Value {
	return Value{text: s, valid: true}
}

// Valid reports whether the value is present.
func (v Value) Valid() bool {
	return v.valid
}

// String returns the value's text, or "" when absent.
func (v Value) String() string {
	return v.text
}

// Or returns the value's text, or def when absent. Present empty strings are
// returned as is.
func (v Value) Or(def string) string {
	if !v.valid {
		return def
	}
	return v.text
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*v = Value{}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("invalid number %s: %w", b, err)
		}
		*v = StringValue(strconv.FormatFloat(f, 'f', -1, 64))
	default:
		*v = StringValue(string(b))
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.text)
}
