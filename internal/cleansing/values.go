package cleansing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var errNotObject = errors.New("payload is not a JSON object")

// dateLayouts lists the accepted date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006/01/02",
	"20060102",
}

// decodePayload parses a staged row. Numbers are kept as json.Number.
func decodePayload(raw string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errNotObject
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return payload, nil
}

// textOf returns the text form of a scalar payload value.
func textOf(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(bytes.TrimSpace(raw))
	}
}

// isMissing reports whether a field is absent, null or blank.
func isMissing(payload map[string]interface{}, field string) bool {
	v, ok := payload[field]
	if !ok || v == nil {
		return true
	}
	return strings.TrimSpace(textOf(v)) == ""
}

// parseNumber converts a payload value to a finite float.
func parseNumber(v interface{}) (float64, bool) {
	var (
		n   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		n, err = strconv.ParseFloat(x.String(), 64)
	case float64:
		n = x
	case bool:
		if x {
			n = 1
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		n, err = strconv.ParseFloat(s, 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// parsePeriod extracts (year, month) from a date value.
func parsePeriod(v interface{}) (int, int, error) {
	s := strings.TrimSpace(textOf(v))
	if s == "" {
		return 0, 0, errors.New("date is required for period parsing")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), int(t.Month()), nil
		}
	}
	return 0, 0, fmt.Errorf("invalid date format: %q", s)
}
