package workorders

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"pickdesk/internal/form"
	"pickdesk/internal/form/formdef"
	"pickdesk/internal/metadata"
)

// Form names accepted by Open.
const (
	FormParts            = "parts"
	FormProjects         = "projects"
	FormWorkOrders       = "workorders"
	FormPriorities       = "priorities"
	FormPartsNeeded      = "partsneeded"
	FormTagPrefixes      = "tagprefixes"
	FormBoxConfiguration = "boxconfigs"
	FormScans            = "scans"
)

// FormLayout is a built-in form: the entity it edits and its field table.
type FormLayout struct {
	Name   string
	Entity string
	Fields func() []form.FieldDef
}

var builtin = map[string]FormLayout{
	FormParts:            {Name: "Parts", Entity: Parts, Fields: PartsForm},
	FormProjects:         {Name: "Projects", Entity: Projects, Fields: ProjectsForm},
	FormWorkOrders:       {Name: "Work Orders", Entity: WorkOrders, Fields: WorkOrdersForm},
	FormPriorities:       {Name: "Pick Priorities", Entity: PickPriorities, Fields: PickPrioritiesForm},
	FormPartsNeeded:      {Name: "Work Order Parts Needed", Entity: WorkOrderPartsNeeded, Fields: PartsNeededForm},
	FormTagPrefixes:      {Name: "Tag Prefixes", Entity: TagPrefixes, Fields: TagPrefixesForm},
	FormBoxConfiguration: {Name: "Box Configurations", Entity: BoxConfigurations, Fields: BoxConfigsForm},
	FormScans:            {Name: "Scans", Entity: Scans, Fields: ScansForm},
}

// Deps is what Open needs to build a controller.
type Deps struct {
	Registry *metadata.Registry
	Store    form.Store
	Prompter form.Prompter
	Choices  *form.ChoiceCache
	Logger   *zap.Logger
	// Defined holds YAML form definitions. A definition replaces the
	// built-in form of the same name.
	Defined []*formdef.Form
}

// FormNames lists the built-in and YAML-defined forms, sorted.
func FormNames(defined []*formdef.Form) []string {
	seen := make(map[string]bool)
	var names []string
	for name := range builtin {
		seen[name] = true
		names = append(names, name)
	}
	for _, f := range defined {
		if !seen[f.Name] {
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Open builds the named form and shows its first record.
func Open(ctx context.Context, name string, deps Deps) (*form.Controller, error) {
	opts, err := options(name, deps)
	if err != nil {
		return nil, err
	}
	opts.Store = deps.Store
	opts.Prompter = deps.Prompter
	opts.Choices = deps.Choices
	opts.Logger = deps.Logger
	return form.New(ctx, opts)
}

func options(name string, deps Deps) (form.Options, error) {
	for _, f := range deps.Defined {
		if f.Name == name {
			return f.Options(deps.Registry)
		}
	}
	layout, ok := builtin[name]
	if !ok {
		return form.Options{}, &form.Error{Kind: form.KindConfig, Op: "open", Err: fmt.Errorf("unknown form %q", name)}
	}
	entity := deps.Registry.GetEntity(layout.Entity)
	if entity == nil {
		return form.Options{}, &form.Error{Kind: form.KindConfig, Op: "open", Err: fmt.Errorf("entity %s not registered", layout.Entity)}
	}
	return form.Options{
		Name:     layout.Name,
		Entity:   entity,
		Registry: deps.Registry,
		Fields:   layout.Fields(),
	}, nil
}

func idField() form.FieldDef {
	return form.FieldDef{Name: "id", Label: "ID", ReadOnly: true, Kind: form.TextField{}}
}

func at(row, col int) form.Position { return form.Position{Row: row, Col: col} }

func text(name, label string, pos form.Position) form.FieldDef {
	return form.FieldDef{Name: name, Label: label, Position: pos, Kind: form.TextField{}}
}

func choice(name, label, list string, pos form.Position) form.FieldDef {
	return form.FieldDef{Name: name, Label: label, Position: pos, Kind: form.ChoiceField{ChoiceList: list}}
}

// loadByKey jumps to the candidate's record; used by lookups whose list
// values are primary keys.
func loadByKey(ctx context.Context, c *form.Controller, key any) error {
	return c.LoadByKey(ctx, key)
}

func PartsForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		{Name: "GPN", Label: "GPN", Position: at(1, 0), Kind: form.TextField{}, Transform: form.Upper},
		{Name: "@GPN", Label: "lookup GPN", Position: at(1, 1), Kind: form.LookupField{ChoiceList: ListParts, Handler: loadByKey}},
		text("Description", "Description", at(2, 0)),
		{Name: "notes", Label: "Notes", Position: at(4, 0), Kind: form.TextField{Multiline: true}},
		{Name: "tag_prefixes", Label: "Tag Prefixes", Position: form.Position{Row: 6, ColSpan: 3}, Kind: form.SubformField{
			Relation: "tag_prefixes",
			Fields: []form.FieldDef{
				idField(),
				text("Prefix", "Prefix", at(0, 1)),
				text("boxqty", "Box Qty", at(0, 2)),
				text("notes", "Notes", at(0, 3)),
			},
		}},
		{Name: "box_configurations", Label: "Box Configs", Position: form.Position{Row: 8, ColSpan: 3}, Kind: form.SubformField{
			Relation: "box_configurations",
			Fields: []form.FieldDef{
				idField(),
				text("palletqty", "Pallet Qty", at(0, 1)),
				text("boxqty", "Qty In Box", at(0, 2)),
				{Name: "unitqty", Label: "Qty Per Unit", Position: at(0, 3), Initial: 1, Kind: form.TextField{}},
				text("notes", "Notes", at(1, 0)),
			},
		}},
	}
}

func ProjectsForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		text("ProjectName", "Project Name", at(1, 0)),
		{Name: "@ProjectName", Label: "lookup Project Name", Position: at(1, 1), Kind: form.LookupField{}},
		text("Color", "Color", at(2, 0)),
	}
}

// WorkOrdersForm spreads a work order over three pages: identifiers on
// Main, requestor and project on "pg 2", the parts list on Parts.
func WorkOrdersForm() []form.FieldDef {
	pg2 := func(row, col, colSpan int) form.Position {
		return form.Position{Row: row, Col: col, ColSpan: colSpan, Page: "pg 2"}
	}
	return []form.FieldDef{
		{Name: "id", Label: "ID", ReadOnly: true, Position: form.Position{Page: "Main"}, Kind: form.TextField{}},
		{Name: "@id", Label: "lookup ID", Position: form.Position{Col: 1, Page: "Main"}, Kind: form.LookupField{ChoiceList: ListCIMSPKNum}},
		{Name: "CIMSNum", Label: "CIMS Number", Position: form.Position{Row: 2, Page: "Main"}, Kind: form.TextField{}, Transform: form.Upper},
		{Name: "@CIMSNum", Label: "lookup CIMS Number", Position: form.Position{Row: 2, Col: 1, Page: "Main"}, Kind: form.LookupField{}},
		{Name: "WOMAid", Label: "WO/MA id", Position: form.Position{Row: 3, Page: "Main"}, Kind: form.TextField{}},
		{Name: "@WOMAid", Label: "lookup WO/MA id", Position: form.Position{Row: 3, Col: 1, Page: "Main"}, Kind: form.LookupField{}},
		text("MRRequestor", "MR Requestor", pg2(1, 0, 2)),
		choice("Project_id", "Project", ListProject, pg2(1, 3, 0)),
		{Name: "notes", Label: "Notes", Position: pg2(2, 0, 3), Kind: form.TextField{Multiline: true}},
		{Name: "parts_needed", Label: "Parts Needed", Position: form.Position{Row: 1, ColSpan: 3, Page: "Parts"}, Kind: form.SubformField{
			Relation: "parts_needed",
			Fields:   partsNeededRow(),
		}},
	}
}

func partsNeededRow() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		{Name: "WorkOrders_id", Label: "Work Order", ReadOnly: true, Position: at(0, 1), Kind: form.ChoiceField{ChoiceList: ListWOMAid}},
		choice("Parts_id", "GPN", ListParts, at(0, 2)),
		text("targetQty", "Target Qty", at(1, 0)),
		text("status", "Status", at(1, 1)),
		choice("priority", "Priority", ListPickPriority, at(1, 2)),
		text("notes", "Notes", at(2, 0)),
	}
}

func PickPrioritiesForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		text("AbsolutePriority", "Priority", at(1, 0)),
		text("PriorityWords", "Priority Words", at(1, 1)),
		{Name: "@PriorityWords", Label: "lookup Priority", Position: at(1, 2), Kind: form.LookupField{}},
		text("notes", "Notes", at(2, 0)),
	}
}

func PartsNeededForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		choice("WorkOrders_id", "Work Order", ListWOMAid, at(1, 0)),
		choice("Parts_id", "GPN", ListParts, at(2, 0)),
		text("targetQty", "Target Qty", at(3, 0)),
		text("status", "Status", at(3, 1)),
		choice("priority", "Priority", ListPickPriority, at(3, 2)),
		text("notes", "Notes", at(4, 0)),
	}
}

func TagPrefixesForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		{Name: "Prefix", Label: "Prefix", Position: at(1, 0), Kind: form.TextField{}, Transform: form.Upper},
		choice("Parts_id", "GPN", ListParts, at(2, 0)),
		text("boxqty", "Box Qty", at(3, 0)),
		text("notes", "Notes", at(4, 0)),
	}
}

func BoxConfigsForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		choice("Parts_id", "GPN", ListParts, at(1, 0)),
		text("palletqty", "Pallet Qty", at(2, 0)),
		text("boxqty", "Qty In Box", at(3, 0)),
		{Name: "unitqty", Label: "Qty Per Unit", Position: at(4, 0), Initial: 1, Kind: form.TextField{}},
		text("notes", "Notes", at(6, 0)),
	}
}

func ScansForm() []form.FieldDef {
	return []form.FieldDef{
		idField(),
		{Name: "pickDate", Label: "Pick Date", Position: at(1, 0), Kind: form.DateField{}},
		{Name: "wave", Label: "Wave", Position: at(1, 1), Initial: 1, Kind: form.TextField{}},
		{Name: "TagID", Label: "Tag ID", Position: at(2, 0), Kind: form.TextField{}, Transform: form.Upper},
		{Name: "@TagID", Label: "lookup Tag ID", Position: at(2, 1), Kind: form.LookupField{}},
		choice("Parts_id", "GPN", ListParts, at(3, 0)),
		choice("WO_id", "Work Order", ListWOMAid, at(3, 1)),
		text("qty", "Qty", at(4, 0)),
		text("splitQtyToLeave", "Split Qty To Leave", at(4, 1)),
		{Name: "palletMark", Label: "Pallet Mark", Position: at(4, 2), Kind: form.CheckboxField{YesNo: &form.YesNo{Yes: "Y", No: "N"}}},
		text("staged_at", "Staged At", at(4, 3)),
		text("notes", "Notes", at(5, 0)),
	}
}
