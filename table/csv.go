package table

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

// ReadCSV parses CSV with a header row into a Table, inferring a scalar
// kind per cell: empty cells become null, then int, float, bool, and
// datetime parses are tried in that order before falling back to string.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	hdr, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("empty csv file")
		}
		return nil, err
	}
	cols := make([]Column, len(hdr))
	for i, name := range hdr {
		cols[i].Name = strings.TrimSpace(name)
	}
	for {
		rec, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if len(rec) != len(cols) {
			// The csv package catches this but we check anyway.
			return nil, errors.New("length of record doesn't match heading")
		}
		for i, field := range rec {
			cols[i].Values = append(cols[i].Values, convertString(field))
		}
	}
	return New(cols)
}

func convertString(s string) Value {
	if s == "" {
		return Null
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(v)
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return Bool(v)
	}
	if looksLikeTime(s) {
		if t, err := dateparse.ParseStrict(s); err == nil {
			return Time(t)
		}
	}
	return String(s)
}

// looksLikeTime gates the dateparse attempt so free-form strings don't
// pay its cost (or get misread as dates).
func looksLikeTime(s string) bool {
	if len(s) < 6 {
		return false
	}
	var digits int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	return digits >= 4 && (strings.ContainsAny(s, "-/:") || strings.Contains(s, "T"))
}
