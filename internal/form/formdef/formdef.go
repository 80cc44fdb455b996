// Package formdef reads form definitions from YAML files so a form's
// layout can change without a rebuild.
package formdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pickdesk/internal/form"
	"pickdesk/internal/metadata"
)

// Form is one YAML form definition.
type Form struct {
	Name   string  `yaml:"name"`
	Entity string  `yaml:"entity"`
	Fields []Field `yaml:"fields"`
}

type Field struct {
	Name       string   `yaml:"name"`
	Label      string   `yaml:"label,omitempty"`
	Kind       string   `yaml:"kind"` // text, choice, checkbox, date, lookup, subform
	Position   Position `yaml:"position,omitempty"`
	Initial    any      `yaml:"initial,omitempty"`
	ReadOnly   bool     `yaml:"read_only,omitempty"`
	Transform  string   `yaml:"transform,omitempty"` // expr expression over `value`
	Multiline  bool     `yaml:"multiline,omitempty"`
	Choices    []Choice `yaml:"choices,omitempty"`
	ChoiceList string   `yaml:"choice_list,omitempty"`
	Yes        string   `yaml:"yes,omitempty"`
	No         string   `yaml:"no,omitempty"`
	Relation   string   `yaml:"relation,omitempty"`
	Fields     []Field  `yaml:"fields,omitempty"`
}

type Position struct {
	Row     int    `yaml:"row"`
	Col     int    `yaml:"col"`
	RowSpan int    `yaml:"row_span,omitempty"`
	ColSpan int    `yaml:"col_span,omitempty"`
	Page    string `yaml:"page,omitempty"`
}

type Choice struct {
	Value any    `yaml:"value"`
	Label string `yaml:"label"`
}

// Schema is an optional YAML file of entities and relations.
type Schema struct {
	Entities  []*metadata.Entity   `yaml:"entities"`
	Relations []*metadata.Relation `yaml:"relations"`
}

// Parse decodes one form definition. Unknown keys are rejected.
func Parse(data []byte) (*Form, error) {
	var f Form
	if err := decodeStrict(data, &f); err != nil {
		return nil, configErr("parse form: %v", err)
	}
	if f.Name == "" {
		return nil, configErr("form without a name")
	}
	if f.Entity == "" {
		return nil, configErr("form %s: no entity", f.Name)
	}
	return &f, nil
}

func LoadFile(path string) (*Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, sorted by file name.
// Form names must be unique.
func LoadDir(dir string) ([]*Form, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read form dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var forms []*Form
	seen := make(map[string]string)
	for _, name := range names {
		f, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[f.Name]; dup {
			return nil, configErr("form %s defined in both %s and %s", f.Name, prev, name)
		}
		seen[f.Name] = name
		forms = append(forms, f)
	}
	return forms, nil
}

// ParseSchema decodes entities and relations and loads them into a new
// registry.
func ParseSchema(data []byte) (*metadata.Registry, error) {
	var s Schema
	if err := decodeStrict(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	reg := metadata.NewRegistry()
	if err := reg.Load(s.Entities, s.Relations); err != nil {
		return nil, err
	}
	return reg, nil
}

// Defs converts the YAML fields into form definitions. Transforms are
// compiled here so a bad expression fails when the form is loaded.
func (f *Form) Defs() ([]form.FieldDef, error) {
	return convert(f.Name, f.Fields)
}

// Options resolves the form's entity in reg and returns controller options
// for it. The caller fills in Store, Prompter, Choices and Logger.
func (f *Form) Options(reg *metadata.Registry) (form.Options, error) {
	entity := reg.GetEntity(f.Entity)
	if entity == nil {
		return form.Options{}, configErr("form %s: unknown entity %s", f.Name, f.Entity)
	}
	defs, err := f.Defs()
	if err != nil {
		return form.Options{}, err
	}
	return form.Options{Name: f.Name, Entity: entity, Registry: reg, Fields: defs}, nil
}

func convert(formName string, fields []Field) ([]form.FieldDef, error) {
	defs := make([]form.FieldDef, 0, len(fields))
	for _, fd := range fields {
		def := form.FieldDef{
			Name:  fd.Name,
			Label: fd.Label,
			Position: form.Position{
				Row:     fd.Position.Row,
				Col:     fd.Position.Col,
				RowSpan: fd.Position.RowSpan,
				ColSpan: fd.Position.ColSpan,
				Page:    fd.Position.Page,
			},
			Initial:  fd.Initial,
			ReadOnly: fd.ReadOnly,
		}
		if fd.Transform != "" {
			tr, err := form.ExprTransform(fd.Transform)
			if err != nil {
				return nil, configErr("form %s field %s: %v", formName, fd.Name, err)
			}
			def.Transform = tr
		}

		switch fd.Kind {
		case "text":
			def.Kind = form.TextField{Multiline: fd.Multiline}
		case "choice":
			choices := make([]form.Choice, 0, len(fd.Choices))
			for _, c := range fd.Choices {
				choices = append(choices, form.Choice{Value: c.Value, Label: c.Label})
			}
			def.Kind = form.ChoiceField{Choices: choices, ChoiceList: fd.ChoiceList}
		case "checkbox":
			k := form.CheckboxField{}
			if fd.Yes != "" || fd.No != "" {
				k.YesNo = &form.YesNo{Yes: fd.Yes, No: fd.No}
			}
			def.Kind = k
		case "date":
			def.Kind = form.DateField{}
		case "lookup":
			def.Kind = form.LookupField{ChoiceList: fd.ChoiceList}
		case "subform":
			rows, err := convert(formName, fd.Fields)
			if err != nil {
				return nil, err
			}
			def.Kind = form.SubformField{Relation: fd.Relation, Fields: rows}
		default:
			return nil, configErr("form %s field %s: unknown kind %q", formName, fd.Name, fd.Kind)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func configErr(format string, args ...any) error {
	return &form.Error{Kind: form.KindConfig, Op: "load form", Message: fmt.Sprintf(format, args...)}
}
