package workorders

import (
	"context"
	"fmt"
	"sort"

	"pickdesk/internal/form"
)

// Table names accepted by OpenTable. A table lists every row of one entity.
const (
	TableWorkOrders        = "wotable"
	TableParts             = "partstable"
	TableProjects          = "projectstable"
	TablePartsNeeded       = "partsneededtable"
	TableTagPrefixes       = "tagprefixestable"
	TableScans             = "scanstable"
	TableBoxConfigurations = "boxconfigstable"
)

// Tables reuse the record form layouts; see columns.
var tables = map[string]FormLayout{
	TableWorkOrders:        {Name: "Work Orders", Entity: WorkOrders, Fields: WorkOrdersForm},
	TableParts:             {Name: "Parts", Entity: Parts, Fields: PartsForm},
	TableProjects:          {Name: "Projects", Entity: Projects, Fields: ProjectsForm},
	TablePartsNeeded:       {Name: "WorkOrder Parts Needed", Entity: WorkOrderPartsNeeded, Fields: PartsNeededForm},
	TableTagPrefixes:       {Name: "Tag Prefixes", Entity: TagPrefixes, Fields: TagPrefixesForm},
	TableScans:             {Name: "Scans", Entity: Scans, Fields: ScansForm},
	TableBoxConfigurations: {Name: "Box Configurations", Entity: BoxConfigurations, Fields: BoxConfigsForm},
}

func TableNames() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func IsTable(name string) bool {
	_, ok := tables[name]
	return ok
}

// OpenTable builds the named table and loads its rows.
func OpenTable(ctx context.Context, name string, deps Deps) (*form.Table, error) {
	layout, ok := tables[name]
	if !ok {
		return nil, &form.Error{Kind: form.KindConfig, Op: "open", Err: fmt.Errorf("unknown table %q", name)}
	}
	entity := deps.Registry.GetEntity(layout.Entity)
	if entity == nil {
		return nil, &form.Error{Kind: form.KindConfig, Op: "open", Err: fmt.Errorf("entity %s not registered", layout.Entity)}
	}
	return form.NewTable(ctx, form.Options{
		Name:     layout.Name,
		Entity:   entity,
		Registry: deps.Registry,
		Fields:   columns(layout.Fields()),
		Store:    deps.Store,
		Prompter: deps.Prompter,
		Choices:  deps.Choices,
		Logger:   deps.Logger,
	})
}

// columns keeps the plain fields of a record form. Lookups and subforms
// have no place in a row, and neither do pages.
func columns(defs []form.FieldDef) []form.FieldDef {
	out := make([]form.FieldDef, 0, len(defs))
	for _, d := range defs {
		if d.IsLookup() {
			continue
		}
		if _, ok := d.Kind.(form.SubformField); ok {
			continue
		}
		d.Position.Page = ""
		out = append(out, d)
	}
	return out
}
