/*Package schema is a utility to validate JSON documents against JSON schemas */
package schema

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator validates JSON documents against a set of schemas, keyed by
// their "$id" property.
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// MustNewValidator creates a new Validator for the given schemas. Every
// schema must carry a "$id" property, which is used to select the schema
// at validation time.
func MustNewValidator(schemas ...string) *Validator {
	type schema struct {
		ID string `json:"$id"`
	}
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for _, str := range schemas {
		s := schema{}
		err := json.Unmarshal([]byte(str), &s)
		if err != nil {
			panic(fmt.Errorf("parse error '%v' in schema: '%s'", err, str))
		}
		if s.ID == "" {
			panic(fmt.Errorf("schema without $id: '%s'", str))
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(str))
		if err != nil {
			panic(fmt.Errorf("cannot compile schema '%s': %v", s.ID, err))
		}
		validator.schemaValidators[s.ID] = compiled
	}
	return &validator
}

// Validate validates the document against the schema with the given id.
// It returns nil if the document is valid, otherwise an error describing
// the first violation. A document that is not valid JSON is a violation
// as well.
func (v *Validator) Validate(id string, document []byte) error {
	schemaValidator, ok := v.schemaValidators[id]
	if !ok {
		return fmt.Errorf("no schema with id '%s'", id)
	}
	result, err := schemaValidator.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return errors.New("invalid json data")
	}
	if !result.Valid() {
		return fmt.Errorf("invalid json data: %s", result.Errors()[0].String())
	}
	return nil
}
