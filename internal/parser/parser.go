// Package parser converts raw OCR text from a dashcam telemetry overlay into
// decimal-degree coordinates. Parsing is a pure function over the input
// string so it can be tested against captured OCR output directly.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bdougie/dash2gps/internal/models"
)

// DefaultSubstitutions maps characters Tesseract routinely misreads in the
// overlay font onto the digit they stand for. Applied to the whole line
// before matching.
var DefaultSubstitutions = map[string]string{
	"O": "0",
	"Q": "0",
	"l": "1",
	"I": "1",
}

// ParseError describes OCR text that could not be turned into a valid
// coordinate pair. Raw keeps the offending input for diagnostics.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Raw, e.Reason)
}

// The overlay prints hemisphere-first DMS groups, latitude before longitude:
//
//	N51°25' 48" E0°19' 20" 51MPH 12:42:29 06/06/2021
//
// Some cameras print the hemisphere letter after the group instead:
//
//	51°25'46"N 0°19'25"E
//
// Both expressions tolerate arbitrary junk between the numeric fields, since
// OCR output of the overlay strip is rarely clean.
var (
	leadingRe = regexp.MustCompile(
		`([NS])\D*(\d+)[^°]*°\D*(\d+)\D+(\d+).*?([EW])\D*(\d+)[^°]*°\D*(\d+)\D+(\d+)`)
	trailingRe = regexp.MustCompile(
		`(\d+)[^°]*°\D*(\d+)\D+(\d+)\D*([NS]).*?(\d+)[^°]*°\D*(\d+)\D+(\d+)\D*([EW])`)
)

// Parser holds the substitution policy. The zero value uses
// DefaultSubstitutions.
type Parser struct {
	replacer *strings.Replacer
}

func New(substitutions map[string]string) *Parser {
	if substitutions == nil {
		substitutions = DefaultSubstitutions
	}
	pairs := make([]string, 0, len(substitutions)*2)
	for from, to := range substitutions {
		pairs = append(pairs, from, to)
	}
	return &Parser{replacer: strings.NewReplacer(pairs...)}
}

// Parse scans the OCR text line by line and returns the first line that
// yields a complete, valid coordinate pair. Lines that match the layout but
// fail validation (seconds >= 60, out-of-range result) are rejected rather
// than clamped; their error is reported if no later line succeeds.
func (p *Parser) Parse(text string) (models.Coordinate, error) {
	var firstErr error
	for line := range strings.Lines(text) {
		coord, err := p.parseLine(line)
		if err == nil {
			return coord, nil
		}
		var pe *ParseError
		if firstErr == nil && errors.As(err, &pe) && pe.Reason != reasonNoMatch {
			firstErr = err
		}
	}
	if firstErr != nil {
		return models.Coordinate{}, firstErr
	}
	return models.Coordinate{}, &ParseError{Reason: reasonNoMatch, Raw: strings.TrimSpace(text)}
}

// ParseAll returns every coordinate recovered from the text, one candidate
// per line, skipping lines that do not parse.
func (p *Parser) ParseAll(text string) []models.Coordinate {
	var coords []models.Coordinate
	for line := range strings.Lines(text) {
		if coord, err := p.parseLine(line); err == nil {
			coords = append(coords, coord)
		}
	}
	return coords
}

const reasonNoMatch = "no coordinate pair found"

func (p *Parser) parseLine(line string) (models.Coordinate, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Coordinate{}, &ParseError{Reason: reasonNoMatch, Raw: line}
	}
	clean := p.replacer.Replace(line)

	var latHemi, lonHemi string
	var latFields, lonFields []string

	if m := leadingRe.FindStringSubmatch(clean); m != nil {
		latHemi, latFields = m[1], m[2:5]
		lonHemi, lonFields = m[5], m[6:9]
	} else if m := trailingRe.FindStringSubmatch(clean); m != nil {
		latFields, latHemi = m[1:4], m[4]
		lonFields, lonHemi = m[5:8], m[8]
	} else {
		return models.Coordinate{}, &ParseError{Reason: reasonNoMatch, Raw: line}
	}

	lat, err := toDecimal(latFields, latHemi, "N", "S", 90)
	if err != nil {
		return models.Coordinate{}, &ParseError{Reason: "latitude: " + err.Error(), Raw: line}
	}
	lon, err := toDecimal(lonFields, lonHemi, "E", "W", 180)
	if err != nil {
		return models.Coordinate{}, &ParseError{Reason: "longitude: " + err.Error(), Raw: line}
	}
	return models.Coordinate{Lat: lat, Lon: lon}, nil
}

// toDecimal converts one DMS group to signed decimal degrees:
// sign * (d + m/60 + s/3600). positive/negative name the hemisphere letters
// that keep or flip the sign; limit is the magnitude bound for the result.
func toDecimal(fields []string, hemi, positive, negative string, limit float64) (float64, error) {
	deg, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("bad degrees %q", fields[0])
	}
	min, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("bad minutes %q", fields[1])
	}
	sec, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, fmt.Errorf("bad seconds %q", fields[2])
	}
	if min >= 60 {
		return 0, fmt.Errorf("minutes %d out of range", min)
	}
	if sec >= 60 {
		return 0, fmt.Errorf("seconds %d out of range", sec)
	}

	dec := float64(deg) + float64(min)/60 + float64(sec)/3600
	if dec > limit {
		return 0, fmt.Errorf("%.6f exceeds %.0f", dec, limit)
	}
	switch hemi {
	case positive:
		return dec, nil
	case negative:
		return -dec, nil
	}
	return 0, fmt.Errorf("unknown hemisphere %q", hemi)
}
