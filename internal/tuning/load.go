package tuning

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/adaptflow/pkg/schema"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML (.yaml, .yml) or JSON tuning file and merges it over
// Defaults. Fields absent from the file keep their default; lists present in
// the file replace the default list wholesale.
func LoadFile(path string, checkers RuleCheckers) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, schema.NewErrorf(schema.ErrCodeConfig, "read tuning file %s", path).WithCause(err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Parse(data, format, checkers)
}

// Parse decodes a tuning document in the given format ("yaml" or "json"),
// validates it structurally and semantically, and returns the merged tables.
func Parse(data []byte, format string, checkers RuleCheckers) (Tables, error) {
	raw, err := normalize(data, format)
	if err != nil {
		return Tables{}, err
	}

	result := validateStructural(raw)
	if !result.Valid() {
		return Tables{}, result.ToError(schema.ErrCodeConfig)
	}

	t := Defaults()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Tables{}, schema.NewError(schema.ErrCodeConfig, "decode tuning document").WithCause(err)
	}

	result.Merge(Validate(&t, checkers))
	if err := result.ToError(schema.ErrCodeConfig); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// normalize converts the input into JSON bytes. YAML is decoded into generic
// values first so both formats share one schema.
func normalize(data []byte, format string) ([]byte, error) {
	switch format {
	case "json":
		if len(bytes.TrimSpace(data)) == 0 {
			return []byte("{}"), nil
		}
		return data, nil
	case "yaml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeConfig, "parse tuning YAML").WithCause(err)
		}
		if doc == nil {
			return []byte("{}"), nil
		}
		raw, err := toJSON(doc)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeConfig, "tuning YAML is not representable as JSON").WithCause(err)
		}
		return raw, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "unsupported tuning format %q", format)
	}
}

// MarshalDocument renders the tables as a YAML document.
func (t Tables) MarshalDocument() ([]byte, error) {
	return yaml.Marshal(t)
}
