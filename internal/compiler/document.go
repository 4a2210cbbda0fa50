// Package compiler implements the policy document model and the
// deterministic compilation algorithm of spec §4.3: merging a device's
// ordered assignments into one conflict-resolved effective policy.
package compiler

import "encoding/json"

// Resource is one entry in a policy document's resources[] array. Fields
// specific to a resource type (package_id, ensure, detect/remediate script
// bodies, ...) are opaque to the compiler and preserved verbatim in Extra so
// unknown or future resource types round-trip without loss.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Key is the unit of conflict resolution (spec §4.3).
type Key struct {
	Type string
	ID   string
}

func (r Resource) Key() Key {
	return Key{Type: r.Type, ID: r.ID}
}

// MarshalJSON flattens Extra back alongside the known fields so the
// resource round-trips as a single opaque JSON object.
func (r Resource) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}

	typeJSON, err := json.Marshal(r.Type)
	if err != nil {
		return nil, err
	}
	idJSON, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	nameJSON, err := json.Marshal(r.Name)
	if err != nil {
		return nil, err
	}
	out["type"] = typeJSON
	out["id"] = idJSON
	out["name"] = nameJSON

	return json.Marshal(out)
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &r.Type); err != nil {
			return err
		}
		delete(raw, "type")
	}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &r.ID); err != nil {
			return err
		}
		delete(raw, "id")
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &r.Name); err != nil {
			return err
		}
		delete(raw, "name")
	}

	r.Extra = raw
	return nil
}

// Document is the top-level shape of Policy.document (spec §4.3).
type Document struct {
	Resources []Resource `json:"resources"`
}

func ParseDocument(raw string) (Document, error) {
	var doc Document
	if raw == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
