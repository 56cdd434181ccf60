package simulation

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// FromYAML decodes a simulation written in YAML. The document is converted to
// JSON and passed through Decode, so the same version gate applies.
func FromYAML(data []byte, opts ...DecodeOption) (*Simulation, error) {
	const op = "simulation.FromYAML"

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.E(op, errs.KindProtocol, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.E(op, errs.KindProtocol, err)
	}
	return Decode(raw, opts...)
}

// ToYAML renders s as YAML using the JSON field names.
func ToYAML(s *Simulation) ([]byte, error) {
	const op = "simulation.ToYAML"

	raw, err := Encode(s)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errs.E(op, errs.KindProtocol, err)
	}
	return yaml.Marshal(doc)
}
