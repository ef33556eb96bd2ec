package manifest

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dstoolkit/internal/errs"
)

//go:embed schemas/manifest.json
var schemaFS embed.FS

// Format is the source language of a manifest.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errs.Configurationf("unsupported manifest extension %q", filepath.Ext(path))
}

// LoadFile reads, validates and decodes the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data, format, path)
}

// Parse validates and decodes a manifest. filename is only used in error
// messages.
func Parse(data []byte, format Format, filename string) (*Manifest, error) {
	doc, err := toJSON(data, format, filename)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, errs.Configurationf("decode manifest %s: %v", filename, err)
	}
	return &m, nil
}

func toJSON(data []byte, format Format, filename string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errs.Configurationf("parse %s: %v", filename, err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, errs.Configurationf("convert %s to json: %v", filename, err)
		}
		return out, nil
	case FormatCUE:
		ctx := cuecontext.New()
		v := ctx.CompileBytes(data, cue.Filename(filename))
		if err := v.Err(); err != nil {
			return nil, errs.Configurationf("compile %s: %v", filename, err)
		}
		if err := v.Validate(); err != nil {
			return nil, errs.Configurationf("evaluate %s: %v", filename, err)
		}
		out, err := v.MarshalJSON()
		if err != nil {
			return nil, errs.Configurationf("export %s: %v", filename, err)
		}
		return out, nil
	}
	return nil, errs.Configurationf("unsupported manifest format %q", format)
}

// ValidationError lists every schema violation of a manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid manifest: " + strings.Join(e.Problems, "; ")
}

var manifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schemas/manifest.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse embedded schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return s, nil
})

// Validate checks a JSON document against the manifest schema.
func Validate(doc []byte) error {
	s, err := manifestSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return errs.Configurationf("parse manifest json: %v", err)
	}
	err = s.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	return &ValidationError{Problems: collectProblems(ve)}
}

var printer = message.NewPrinter(language.English)

func collectProblems(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", path, ve.ErrorKind.LocalizedString(printer))}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, collectProblems(cause)...)
	}
	return out
}
