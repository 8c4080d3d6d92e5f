// Package manifest edits the dependency list of vcpkg.json port manifests.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// ErrParse is returned when a manifest is not a JSON object with an array of
// dependencies.
var ErrParse = errors.New("invalid manifest")

type document struct {
	Dependencies *[]json.RawMessage `json:"dependencies"`
}

type dependency struct {
	Name string `json:"name"`
}

type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

func parse(data []byte) (*document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &doc, nil
}

// Dependencies returns the names in the manifest's dependency list, whether
// they are written as bare strings or as {"name": ...} records.
func Dependencies(data []byte) ([]string, error) {
	doc, err := parse(data)
	if err != nil {
		return nil, err
	}
	if doc.Dependencies == nil {
		return nil, nil
	}

	names := make([]string, 0, len(*doc.Dependencies))
	for i, raw := range *doc.Dependencies {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			names = append(names, name)
			continue
		}
		var dep dependency
		if err := json.Unmarshal(raw, &dep); err != nil {
			return nil, fmt.Errorf("%w: dependency %d is neither a string nor an object", ErrParse, i)
		}
		names = append(names, dep.Name)
	}
	return names, nil
}

// HasDependency reports whether name is already declared.
func HasDependency(data []byte, name string) (bool, error) {
	names, err := Dependencies(data)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// InjectDependency makes name the first dependency of the manifest. If the
// manifest already declares it, data is returned as is and changed is false.
// Otherwise the document is rewritten with its key order and the text of
// untouched strings preserved, indented by two spaces and terminated by a
// newline.
func InjectDependency(data []byte, name string) ([]byte, bool, error) {
	doc, err := parse(data)
	if err != nil {
		return nil, false, err
	}
	present, err := HasDependency(data, name)
	if err != nil {
		return nil, false, err
	}
	if present {
		return data, false, nil
	}

	op := patchOp{Op: "add", Path: "/dependencies/0", Value: name}
	if doc.Dependencies == nil {
		op = patchOp{Op: "add", Path: "/dependencies", Value: []string{name}}
	}

	raw, err := json.Marshal([]patchOp{op})
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode patch: %w", err)
	}
	opts := jsonpatch.NewApplyOptions()
	opts.EscapeHTML = false
	patched, err := patch.ApplyIndentWithOptions(data, "  ", opts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply patch: %w", err)
	}

	out := append(bytes.TrimRight(patched, "\n"), '\n')
	return out, true, nil
}
