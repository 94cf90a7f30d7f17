package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// moduleKey names the worker type inside a node entry of a nodes file.
const moduleKey = "module"

// LoadNodesFile reads a nodes file: a JSON or YAML object keyed by node name whose entries
// carry the worker type under "module" next to the worker parameters. Nodes are returned
// sorted by name.
func LoadNodesFile(path string) ([]Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes file: %w", err)
	}
	return ParseNodes(data)
}

// ParseNodes decodes the contents of a nodes file. JSON input is accepted as YAML.
func ParseNodes(data []byte) ([]Node, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse nodes file: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]Node, 0, len(names))
	errs := &ValidationErrors{}
	for _, name := range names {
		entry := raw[name]
		module, _ := entry[moduleKey].(string)
		if module == "" {
			errs.add(name+"."+moduleKey, fmt.Sprintf("%s.%s is required", name, moduleKey))
			continue
		}

		params := make(map[string]any, len(entry))
		for k, v := range entry {
			if k != moduleKey {
				params[k] = v
			}
		}
		nodes = append(nodes, Node{Name: name, Type: module, Params: params})
	}

	if len(errs.Errors) > 0 {
		return nil, errs
	}
	return nodes, nil
}
