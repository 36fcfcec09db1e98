// Package source finds and decodes raw scan documents.
package source

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/nmap"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned by Load when none of the candidates exists.
	ErrNotFound = errors.New("scan document not found")
	// ErrNotDocument is returned when the top level value is not a mapping.
	ErrNotDocument = errors.New("scan document must be a mapping")
)

// Format of a scan document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXML  Format = "xml"
)

const schemaURL = "https://czertainly.com/vuln-lens/scan.schema.json"

//go:embed scan.schema.json
var schemaJSON []byte

var schema *jsonschema.Schema

func init() {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("scan.schema.json: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("scan.schema.json: %v", err))
	}
	schema, err = c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("scan.schema.json: %v", err))
	}
}

// Loader reads scan documents. With Schema set every decoded document is
// checked against the expected vendor shape and deviations are logged as
// warnings. The check never rejects a document, the normalizer decides what
// is usable.
type Loader struct {
	Schema bool
}

// Load is Loader{Schema: true}.Load.
func Load(ctx context.Context, candidates ...string) (string, model.Raw, error) {
	return Loader{Schema: true}.Load(ctx, candidates...)
}

// Load decodes the first existing path of candidates and returns it together
// with the document.
func (l Loader) Load(ctx context.Context, candidates ...string) (string, model.Raw, error) {
	path, err := First(candidates...)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return path, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	raw, err := l.Read(ctx, path, f)
	return path, raw, err
}

// First returns the first candidate which exists.
func First(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		_, err := os.Stat(c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", c, err)
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrNotFound, strings.Join(candidates, ", "))
}

// Read decodes a document from r, name selects the format.
func (l Loader) Read(ctx context.Context, name string, r io.Reader) (model.Raw, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return l.Decode(ctx, name, b)
}

// Decode parses b in the format given by the extension of name. When the
// extension is not known the content is sniffed. Errors do not name the
// document, callers report it.
func (l Loader) Decode(ctx context.Context, name string, b []byte) (model.Raw, error) {
	format, err := Detect(name, b)
	if err != nil {
		return nil, err
	}

	var raw model.Raw
	switch format {
	case FormatXML:
		raw, err = nmap.Parse(ctx, b)
	case FormatYAML:
		raw, err = decodeYAML(b)
	default:
		raw, err = decodeJSON(b)
	}
	if err != nil {
		return nil, err
	}

	if l.Schema {
		if err := Check(raw); err != nil {
			slog.WarnContext(ctx, "document deviates from the expected shape", "path", name, "error", err)
		}
	}
	return raw, nil
}

// Detect returns the format of a document.
func Detect(name string, b []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xml":
		return FormatXML, nil
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return "", model.ErrUnsupportedFormat
	}
	switch trimmed[0] {
	case '{':
		return FormatJSON, nil
	case '<':
		return FormatXML, nil
	}
	return FormatYAML, nil
}

// Check validates raw against the embedded scan document schema.
func Check(raw model.Raw) error {
	// the schema validator wants json.Number instead of Go integers
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return schema.Validate(inst)
}

func decodeJSON(b []byte) (model.Raw, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return asRaw(v)
}

func decodeYAML(b []byte) (model.Raw, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return asRaw(v)
}

func asRaw(v any) (model.Raw, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotDocument, v)
	}
	return raw, nil
}
