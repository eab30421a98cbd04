package intakeapi

import (
	"github.com/kaptinlin/jsonschema"

	"github.com/linnemanlabs/go-core/xerrors"
)

const symptomsRequired = "symptoms text is required"

const triageSchemaJSON = `{
  "type": "object",
  "required": ["symptoms"],
  "properties": {
    "name":     {"type": ["string", "null"]},
    "age":      {"type": ["number", "string", "null"]},
    "sex":      {"type": ["string", "null"]},
    "duration": {"type": ["string", "null"]},
    "symptoms": {"type": "string", "minLength": 1},
    "vitals":   {"type": ["object", "string", "null"]},
    "history":  {"type": ["string", "null"]}
  }
}`

const clarifySchemaJSON = `{
  "type": "object",
  "required": ["symptoms"],
  "properties": {
    "symptoms":            {"type": "string", "minLength": 1},
    "clarifyingQuestions": {"type": ["array", "null"]},
    "answers":             {"type": ["object", "null"]},
    "baseSeverity":        {"type": ["number", "string", "null"]},
    "baseRoute":           {"type": ["string", "null"]},
    "baseWaitRange":       {"type": ["string", "null"]},
    "patient": {
      "type": ["object", "null"],
      "properties": {
        "id":   {"type": ["string", "number", "null"]},
        "name": {"type": ["string", "null"]}
      }
    }
  }
}`

func mustCompile(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(xerrors.New("compile intake schema: " + err.Error()))
	}
	return schema
}
