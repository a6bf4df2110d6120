package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/adaptflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed tables.schema.json
var tablesSchemaJSON string

const tablesSchemaURL = "https://adaptflow.dev/schemas/tuning.json"

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// tablesSchema compiles the embedded JSON Schema once per process.
func tablesSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(tablesSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal tuning schema: %w", err)
			return
		}
		if err := c.AddResource(tablesSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add tuning schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(tablesSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile tuning schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// validateStructural checks a JSON document against the tuning schema and
// reports each leaf violation at its instance location.
func validateStructural(raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	sch, err := tablesSchema()
	if err != nil {
		result.AddError("/", "%s", err.Error())
		return result
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", "document is not valid JSON: %s", err.Error())
		return result
	}

	if err := sch.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", "%s", err.Error())
			return result
		}
		collectViolations(verr, result)
	}
	return result
}

// collectViolations walks a ValidationError tree and records leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		result.AddError(loc, "%s", verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectViolations(cause, result)
	}
}

// toJSON renders a decoded value as JSON for schema validation.
func toJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
