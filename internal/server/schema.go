package server

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const createSessionSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "domain":          {"type": "string", "maxLength": 200},
    "interview_type":  {"type": "string", "maxLength": 100},
    "company":         {"type": "string", "maxLength": 200},
    "level":           {"type": "string", "maxLength": 100},
    "job_description": {"type": "string", "maxLength": 20000},
    "candidate_name":  {"type": "string", "maxLength": 200}
  }
}`

const questionsSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "domain":          {"type": "string", "maxLength": 200},
    "interview_type":  {"type": "string", "maxLength": 100},
    "company":         {"type": "string", "maxLength": 200},
    "level":           {"type": "string", "maxLength": 100},
    "job_description": {"type": "string", "maxLength": 20000}
  }
}`

const answerSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["answer"],
  "properties": {
    "answer": {"type": "string", "maxLength": 20000}
  }
}`

var (
	createSessionSchema = mustSchema("create session", createSessionSchemaJSON)
	questionsSchema     = mustSchema("questions", questionsSchemaJSON)
	answerSchema        = mustSchema("answer", answerSchemaJSON)
)

func mustSchema(name, source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("invalid %s schema: %v", name, err))
	}
	return schema
}

// validateAgainstSchema checks a raw JSON document and joins every violation into one error
func validateAgainstSchema(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("request validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
