package casefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAML parses case files from a YAML document mapping event names
// to action definitions:
//
//	billing_invoice_send_failed:
//	  action_type: notification
//	  transport: hipchat
//	  room: ops
//
// Rules are returned sorted by event name for deterministic seeding.
func ParseYAML(data []byte) ([]*Rule, error) {
	var doc map[string]Action
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse case files: %w", err)
	}

	rules := make([]*Rule, 0, len(doc))
	for name, action := range doc {
		if name == "" {
			return nil, fmt.Errorf("parse case files: empty event name")
		}
		if action.Type == "" {
			return nil, fmt.Errorf("parse case files: %s: action_type is required", name)
		}
		rules = append(rules, &Rule{EventName: name, Action: action})
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].EventName < rules[j].EventName })
	return rules, nil
}

// LoadDir parses all .yaml and .yml files in a directory into rules.
// Files are read in lexical order; a later file may override an event
// name defined in an earlier one.
func LoadDir(dir string) ([]*Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read case file dir: %w", err)
	}

	byName := make(map[string]*Rule)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read case file %s: %w", entry.Name(), err)
		}
		rules, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		for _, r := range rules {
			byName[r.EventName] = r
		}
	}

	rules := make([]*Rule, 0, len(byName))
	for _, r := range byName {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].EventName < rules[j].EventName })
	return rules, nil
}
