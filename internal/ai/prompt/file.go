package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileTemplate is one entry of a templates file.
type fileTemplate struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
}

type templatesFile struct {
	Templates []fileTemplate `yaml:"templates"`
}

// LoadFile registers the templates defined in a YAML file of the form
//
//	templates:
//	  - name: terse
//	    description: One line answer
//	    text: |
//	      CPU {{pct .Sample.CPUPercent}}%. Why?
//
// and returns their names. Nothing is registered if any entry is invalid.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt templates: %w", err)
	}

	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompt templates %s: %w", path, err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("prompt templates %s: no templates defined", path)
	}

	seen := make(map[string]bool, len(file.Templates))
	for i, t := range file.Templates {
		name := normalizeName(t.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("prompt templates %s: entry %d has no name", path, i+1)
		case t.Text == "":
			return nil, fmt.Errorf("prompt templates %s: %q has no text", path, name)
		case seen[name]:
			return nil, fmt.Errorf("prompt templates %s: %q defined twice", path, name)
		}
		seen[name] = true
		if _, err := parseText(name, t.Text); err != nil {
			return nil, fmt.Errorf("prompt templates %s: %w", path, err)
		}
	}

	names := make([]string, 0, len(file.Templates))
	for _, t := range file.Templates {
		if err := Register(t.Name, t.Description, t.Text); err != nil {
			return nil, err
		}
		names = append(names, normalizeName(t.Name))
	}
	return names, nil
}
