package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxBodySize bounds JSON request bodies
const DefaultMaxBodySize = 1 << 20

// BodyError describes a request body that could not be decoded. Handlers
// render it as 400 Bad Request.
type BodyError struct {
	Status  int
	Message string
	Err     error
}

func (e *BodyError) Error() string {
	return e.Message
}

func (e *BodyError) Unwrap() error {
	return e.Err
}

// Parser decodes JSON request bodies
type Parser struct {
	maxBodySize int64
}

// NewParser creates a parser with the default body size limit
func NewParser() *Parser {
	return NewParserWithMaxSize(DefaultMaxBodySize)
}

// NewParserWithMaxSize creates a parser with a custom max body size
func NewParserWithMaxSize(maxBytes int64) *Parser {
	return &Parser{maxBodySize: maxBytes}
}

// ParseJSON decodes a single JSON object from the request body into target.
// Unknown fields, trailing data and bodies over the size limit are rejected.
func (p *Parser) ParseJSON(w http.ResponseWriter, r *http.Request, target interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return &BodyError{
				Status:  http.StatusUnsupportedMediaType,
				Message: "Content-Type must be application/json",
				Err:     err,
			}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		return decodeError(err)
	}
	if decoder.More() {
		return &BodyError{Status: http.StatusBadRequest, Message: "request body must contain a single JSON object"}
	}
	return nil
}

func decodeError(err error) *BodyError {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		maxErr    *http.MaxBytesError
	)

	msg := "request body is not valid JSON"
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, io.EOF):
		msg = "request body is empty"
	case errors.Is(err, io.ErrUnexpectedEOF):
		msg = "request body contains malformed JSON"
	case errors.As(err, &syntaxErr):
		msg = fmt.Sprintf("request body contains malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		msg = fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
		msg = fmt.Sprintf("request body must not exceed %d bytes", maxErr.Limit)
	default:
		if field, ok := unknownField(err); ok {
			msg = fmt.Sprintf("unknown field %s", field)
		}
	}
	return &BodyError{Status: status, Message: msg, Err: err}
}

// unknownField extracts the field name from the decoder's unknown field error
func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	s := err.Error()
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}
