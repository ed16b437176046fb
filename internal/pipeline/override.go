package pipeline

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/extract"
)

// overrideSchema constrains the caller-supplied metadata override blob.
const overrideSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "client_code":  {"type": "string", "pattern": "^CL-?[0-9]{4}$"},
    "project_code": {"type": "string", "pattern": "^[A-Za-z]{2,4}-[0-9]{4}-[0-9]{2}-CL[0-9]{4}-[0-9]{3}$"},
    "part_name":    {"type": "string", "minLength": 1, "maxLength": 120},
    "material":     {"type": "string", "minLength": 1, "maxLength": 80},
    "thickness_mm": {"type": "number", "exclusiveMinimum": 0, "maximum": 500},
    "quantity":     {"type": "integer", "minimum": 1, "maximum": 10000}
  }
}`

var (
	overrideOnce     sync.Once
	compiledOverride *jsonschema.Schema
	overrideCompile  error
)

func compiledOverrideSchema() (*jsonschema.Schema, error) {
	overrideOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("override.json", strings.NewReader(overrideSchema)); err != nil {
			overrideCompile = err
			return
		}
		compiledOverride, overrideCompile = compiler.Compile("override.json")
	})
	return compiledOverride, overrideCompile
}

// Overrides are validated caller-supplied field values that win over
// extracted ones.
type Overrides struct {
	ClientCode  *string  `json:"client_code"`
	ProjectCode *string  `json:"project_code"`
	PartName    *string  `json:"part_name"`
	Material    *string  `json:"material"`
	ThicknessMM *float64 `json:"thickness_mm"`
	Quantity    *int     `json:"quantity"`
}

// ParseOverrides validates the raw blob against the schema and decodes
// it. A nil or empty blob yields no overrides.
func ParseOverrides(blob json.RawMessage) (*Overrides, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	schema, err := compiledOverrideSchema()
	if err != nil {
		return nil, common.NewAppError("SCHEMA_COMPILE", "compiling override schema", err)
	}
	var v any
	if err := json.Unmarshal(blob, &v); err != nil {
		return nil, common.NewValidationError("metadata overrides are not valid JSON")
	}
	if err := schema.Validate(v); err != nil {
		return nil, common.NewValidationError("metadata overrides rejected: " + err.Error())
	}
	var o Overrides
	if err := json.Unmarshal(blob, &o); err != nil {
		return nil, common.NewValidationError("metadata overrides are not valid JSON")
	}
	return &o, nil
}

// Apply folds the overrides onto extracted metadata and returns the
// field names that changed, for provenance recording.
func (o *Overrides) Apply(md *extract.Metadata) []string {
	if o == nil {
		return nil
	}
	var applied []string
	if o.ClientCode != nil {
		md.ClientCode = canonicalClient(*o.ClientCode)
		applied = append(applied, "client_code")
	}
	if o.ProjectCode != nil {
		md.ProjectCode = strings.ToUpper(*o.ProjectCode)
		applied = append(applied, "project_code")
	}
	if o.PartName != nil {
		md.PartName = *o.PartName
		applied = append(applied, "part_name")
	}
	if o.Material != nil {
		md.Material = *o.Material
		applied = append(applied, "material")
	}
	if o.ThicknessMM != nil {
		md.ThicknessMM = *o.ThicknessMM
		applied = append(applied, "thickness_mm")
	}
	if o.Quantity != nil {
		md.Quantity = *o.Quantity
		applied = append(applied, "quantity")
	}
	return applied
}

func canonicalClient(code string) string {
	code = strings.ToUpper(code)
	return "CL" + strings.TrimPrefix(strings.ReplaceAll(code, "-", ""), "CL")
}
