// Package input reads values to sort from plain text or JSON documents.
package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Sentinel errors.
var (
	ErrUnknownFormat = errors.New("unknown format")
	ErrSchema        = errors.New("input does not match schema")
	ErrParse         = errors.New("cannot parse value")
)

// Format is an input document format.
type Format string

// Supported input formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Type is the element type values are parsed into.
type Type string

// Supported element types.
const (
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeString Type = "string"
)

// maxLineSize bounds a single text line.
const maxLineSize = 1 << 20

// valuesSchema accepts an array whose elements are numbers or strings.
const valuesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {"type": ["number", "string"]}
}`

var schemaLoader = gojsonschema.NewStringLoader(valuesSchema)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: input %q (want text or json)", ErrUnknownFormat, name)
	}
}

// ParseType validates an element type name.
func ParseType(name string) (Type, error) {
	switch t := Type(strings.ToLower(name)); t {
	case TypeInt, TypeFloat, TypeString:
		return t, nil
	default:
		return "", fmt.Errorf("%w: type %q (want int, float or string)", ErrUnknownFormat, name)
	}
}

// ReadInts reads signed integers.
func ReadInts(r io.Reader, format Format) ([]int64, error) {
	return read(r, format, func(token string) (int64, error) {
		return strconv.ParseInt(token, 10, 64)
	})
}

// ReadFloats reads floating point numbers. "NaN" and "Inf" are accepted in text input.
func ReadFloats(r io.Reader, format Format) ([]float64, error) {
	return read(r, format, func(token string) (float64, error) {
		return strconv.ParseFloat(token, 64)
	})
}

// ReadStrings reads strings. JSON numbers keep their literal spelling.
func ReadStrings(r io.Reader, format Format) ([]string, error) {
	return read(r, format, func(token string) (string, error) {
		return token, nil
	})
}

func read[T any](r io.Reader, format Format, parse func(string) (T, error)) ([]T, error) {
	tokens, err := Tokens(r, format)
	if err != nil {
		return nil, err
	}

	values := make([]T, 0, len(tokens))

	for idx, token := range tokens {
		v, parseErr := parse(token)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: element %d %q: %w", ErrParse, idx, token, parseErr)
		}

		values = append(values, v)
	}

	return values, nil
}

// Tokens splits a document into raw value tokens.
func Tokens(r io.Reader, format Format) ([]string, error) {
	switch format {
	case FormatText:
		return textTokens(r)
	case FormatJSON:
		return jsonTokens(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// textTokens returns one token per non-blank line, with surrounding
// whitespace trimmed.
func textTokens(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	var tokens []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens = append(tokens, line)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read text input: %w", err)
	}

	return tokens, nil
}

func jsonTokens(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json input: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: malformed json", ErrParse)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			msgs = append(msgs, resultErr.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var elements []any

	err = decoder.Decode(&elements)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	tokens := make([]string, 0, len(elements))

	for _, element := range elements {
		switch v := element.(type) {
		case json.Number:
			tokens = append(tokens, v.String())
		case string:
			tokens = append(tokens, v)
		}
	}

	return tokens, nil
}
