package model

import (
	"fmt"
	"log/slog"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

const (
	CodeUnknownField      = "unknown_field"
	CodeConflictingValues = "conflicting_values"
	CodeMissingRequired   = "missing_required"
	CodeValidationError   = "validation_error"
)

// CueError is returned when a config document does not match the schema.
type CueError struct {
	cuerr error
}

func (e CueError) Error() string {
	return e.cuerr.Error()
}

func (e CueError) Unwrap() error {
	return e.cuerr
}

// Details converts CUE errors into a list of user friendly messages.
func (e CueError) Details() []CueErrorDetail {
	errs := errors.Errors(e.cuerr)
	ret := make([]CueErrorDetail, 0, len(errs))
	for _, err := range errs {
		ret = append(ret, humanize(err))
	}
	return ret
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

func (p CueErrorPosition) String() string {
	if p.Filename == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

type CueErrorDetail struct {
	Path    string
	Code    string
	Message string
	Pos     CueErrorPosition
	Raw     string
}

func (d CueErrorDetail) Attr(key string) slog.Attr {
	return slog.Group(key,
		slog.String("path", d.Path),
		slog.String("code", d.Code),
		slog.String("message", d.Message),
		slog.String("pos", d.Pos.String()),
	)
}

func humanize(err errors.Error) CueErrorDetail {
	path := err.Path()
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	field := ""
	if len(path) > 0 {
		field = path[len(path)-1]
	}

	format, args := err.Msg()
	msg := fmt.Sprintf(format, args...)

	d := CueErrorDetail{
		Path: strings.Join(path, "."),
		Pos:  inputPosition(err),
		Raw:  err.Error(),
	}

	switch {
	case strings.Contains(msg, "field not allowed"):
		d.Code = CodeUnknownField
		d.Message = fmt.Sprintf("Field %s is not allowed", field)
	case strings.Contains(msg, "incomplete value"):
		d.Code = CodeMissingRequired
		d.Message = fmt.Sprintf("Field %s is required", field)
	case strings.Contains(msg, "conflicting values"),
		strings.Contains(msg, "empty disjunction"):
		d.Code = CodeConflictingValues
		d.Message = fmt.Sprintf("Conflicting values for %s: %s", field, msg)
	default:
		d.Code = CodeValidationError
		d.Message = fmt.Sprintf("Field %s is invalid: %s", field, msg)
	}
	return d
}

// inputPosition prefers a position inside the user document over one in
// the embedded schema
func inputPosition(err errors.Error) CueErrorPosition {
	positions := append([]token.Pos{err.Position()}, err.InputPositions()...)
	for _, pos := range positions {
		if !pos.IsValid() || pos.Filename() != "config.yaml" {
			continue
		}
		return CueErrorPosition{
			Filename: pos.Filename(),
			Line:     pos.Line(),
			Column:   pos.Column(),
		}
	}
	return CueErrorPosition{}
}
