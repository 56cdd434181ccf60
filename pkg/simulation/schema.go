package simulation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

//go:embed schema/simulation.schema.json
var schemaJSON []byte

const schemaURL = "simulation.schema.json"

var (
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
	compileOnce       sync.Once
)

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, compiledSchemaErr
}

// Validate checks a simulation document against the schema version gate and
// the embedded JSON schema without decoding it.
func Validate(data []byte) error {
	const op = "simulation.Validate"
	if err := checkVersion(op, data); err != nil {
		return err
	}
	return validate(op, data)
}

func validate(op string, data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return errs.E(op, errs.KindSchema, err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return errs.E(op, errs.KindProtocol, err)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			var msgs []string
			collectSchemaErrors(verr, &msgs)
			return errs.Errorf(op, errs.KindSchema, "%s", strings.Join(msgs, "; "))
		}
		return errs.E(op, errs.KindSchema, err)
	}
	return nil
}

// collectSchemaErrors flattens the leaves of a validation error tree.
func collectSchemaErrors(err *jsonschema.ValidationError, out *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, loc+": "+err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}
