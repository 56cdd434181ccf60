package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// MinSchemaMajor is the oldest schema major version accepted.
const MinSchemaMajor = 2

// V1Unsupported is the message carried by the error returned for v1 documents.
const V1Unsupported = "The v1 simulation is not supported. Use v2 or newer"

type decodeOptions struct {
	legacyMatchers bool
	validate       bool
}

// DecodeOption tunes Decode.
type DecodeOption func(*decodeOptions)

// WithLegacyMatchers accepts single-object field matchers, either
// {"matcher":..,"value":..} or {"exactMatch":..,"globMatch":..}, and plain
// string fields, rewriting them into matcher arrays before decoding.
func WithLegacyMatchers() DecodeOption {
	return func(o *decodeOptions) { o.legacyMatchers = true }
}

// WithSchemaValidation validates the document against the embedded JSON schema.
func WithSchemaValidation() DecodeOption {
	return func(o *decodeOptions) { o.validate = true }
}

// Decode parses a simulation document.
//
// The schema version is checked before anything else is decoded. Malformed JSON
// fails with errs.KindProtocol; a missing, unparseable or pre-v2 schema version
// fails with errs.KindSchema and no partial value.
func Decode(data []byte, opts ...DecodeOption) (*Simulation, error) {
	const op = "simulation.Decode"

	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := checkVersion(op, data); err != nil {
		return nil, err
	}
	if o.legacyMatchers {
		var err error
		if data, err = canonicalizeLegacy(data); err != nil {
			return nil, errs.E(op, errs.KindProtocol, err)
		}
	}
	if o.validate {
		if err := validate(op, data); err != nil {
			return nil, err
		}
	}

	var s Simulation
	if err := unmarshalBody(data, &s); err != nil {
		return nil, formatError(op, err)
	}
	return &s, nil
}

// Encode renders s as a simulation document. A value stamped with a missing
// or pre-v2 schema version fails with errs.KindSchema.
func Encode(s *Simulation) ([]byte, error) {
	const op = "simulation.Encode"
	if s == nil {
		return nil, errs.Errorf(op, errs.KindInvalidArgument, "nil simulation")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errs.E(op, errs.KindProtocol, err)
	}
	if err := checkVersion(op, data); err != nil {
		return nil, err
	}
	return data, nil
}

// UnmarshalJSON applies the same version gate as Decode.
func (s *Simulation) UnmarshalJSON(data []byte) error {
	if err := checkVersion("simulation.Simulation.UnmarshalJSON", data); err != nil {
		return err
	}
	return unmarshalBody(data, s)
}

func unmarshalBody(data []byte, s *Simulation) error {
	type alias Simulation
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Simulation(a)
	return nil
}

// checkVersion peeks at meta.schemaVersion without decoding the document.
func checkVersion(op string, data []byte) error {
	if !gjson.ValidBytes(data) {
		return errs.Errorf(op, errs.KindProtocol, "malformed simulation JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return errs.Errorf(op, errs.KindProtocol, "simulation must be a JSON object")
	}
	v := root.Get("meta.schemaVersion")
	if !v.Exists() || v.Type != gjson.String {
		return errs.Errorf(op, errs.KindSchema, "missing meta.schemaVersion")
	}
	major, err := parseMajor(v.String())
	if err != nil {
		return errs.Errorf(op, errs.KindSchema, "unparseable schema version %q", v.String())
	}
	if major < MinSchemaMajor {
		return errs.Errorf(op, errs.KindSchema, V1Unsupported)
	}
	return nil
}

// parseMajor reads the major number of versions such as "v5.2", "v2" or "3".
func parseMajor(version string) (int, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(version), "v"), "V")
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	major, err := strconv.Atoi(v)
	if err != nil || major < 0 {
		return 0, fmt.Errorf("bad version %q", version)
	}
	return major, nil
}

func formatError(op string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		if typeErr.Value == "object" {
			return errs.Errorf(op, errs.KindProtocol,
				"object-valued matcher at %s requires legacy matcher support", typeErr.Field)
		}
		return errs.Errorf(op, errs.KindProtocol, "unexpected JSON %s at %s", typeErr.Value, typeErr.Field)
	}
	return errs.E(op, errs.KindProtocol, err)
}
