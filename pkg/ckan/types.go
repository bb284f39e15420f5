package ckan

import (
	"encoding/json"
	"strings"
)

type DatasetSpec struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Title string `json:"title,omitempty" yaml:"title"`
	Notes string `json:"notes,omitempty" yaml:"notes"`
}

type Dataset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
}

// Resource finds a resource in the dataset by name
func (d *Dataset) Resource(name string) (*Resource, bool) {
	if d == nil {
		return nil, false
	}

	for i := range d.Resources {
		if d.Resources[i].Name == name {
			return &d.Resources[i], true
		}
	}

	return nil, false
}

type Resource struct {
	ID        string `json:"id"`
	PackageID string `json:"package_id,omitempty"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Format    string `json:"format"`
}

// Field declares a datastore column
type Field struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

const (
	FieldTypeInt   string = "int"
	FieldTypeFloat string = "float"
	FieldTypeText  string = "text"
)

type actionResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *actionError    `json:"error,omitempty"`
}

// actionError holds the CKAN error object. Apart from __type and message,
// validation errors carry one list of messages per offending field.
type actionError struct {
	Type    string
	Message string
}

func (e *actionError) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		var s string
		var list []string

		switch {
		case json.Unmarshal(value, &s) == nil:
		case json.Unmarshal(value, &list) == nil && len(list) > 0:
			s = key + ": " + strings.Join(list, ", ")
		default:
			continue
		}

		if key == "__type" {
			e.Type = s
		} else if e.Message == "" || key == "message" {
			e.Message = s
		}
	}

	return nil
}
