package report

import (
	_ "embed"
	"fmt"
	"strings"

	jss "github.com/kaptinlin/jsonschema"
)

//go:embed schema/output.schema.json
var outputSchema []byte

// Validator checks the output artifact against the embedded JSON schema.
type Validator struct {
	schema *jss.Schema
}

func NewValidator() (Validator, error) {
	compiler := jss.NewCompiler()
	schema, err := compiler.Compile(outputSchema)
	if err != nil {
		return Validator{}, fmt.Errorf("compiling schema: %w", err)
	}
	return Validator{schema: schema}, nil
}

func (v Validator) ValidateBytes(b []byte) error {
	res := v.schema.Validate(b)
	if !res.Valid {
		var errorMsgs []string
		for _, err := range res.Errors {
			errorMsgs = append(errorMsgs, fmt.Sprintf("%s: %s", err.Keyword, err.Error()))
		}
		return fmt.Errorf("output validation failed:\n%s", strings.Join(errorMsgs, "\n"))
	}
	return nil
}
