// Package workorders defines the pick-list application: its entities,
// choice lists and forms.
package workorders

import (
	"context"

	"pickdesk/internal/form"
	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

const (
	Parts                = "Parts"
	Projects             = "Projects"
	WorkOrders           = "WorkOrders"
	PickPriorities       = "PickPriorities"
	WorkOrderPartsNeeded = "WorkOrderPartsNeeded"
	TagPrefixes          = "TagPrefixes"
	BoxConfigurations    = "BoxConfigurations"
	Scans                = "Scans"
)

func idKey() metadata.PrimaryKey {
	return metadata.PrimaryKey{Field: "id", Type: "int", Generated: true}
}

func notes() metadata.Field {
	return metadata.Field{Name: "notes", Type: "string", Default: ""}
}

// Entities returns the application entities, parents before dependents.
func Entities() []*metadata.Entity {
	return []*metadata.Entity{
		{
			Name: Parts, Table: "Parts", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "GPN", Type: "string", Unique: true, Required: true},
				{Name: "Description", Type: "string", Default: ""},
				notes(),
			},
		},
		{
			Name: Projects, Table: "Projects", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "ProjectName", Type: "string", Unique: true, Required: true},
				{Name: "Color", Type: "string", Default: ""},
			},
		},
		{
			Name: WorkOrders, Table: "WorkOrders", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "WOType", Type: "string", Default: "PK"},
				{Name: "CIMSNum", Type: "string", Unique: true, Required: true},
				{Name: "WOMAid", Type: "string", Default: ""},
				{Name: "MRRequestor", Type: "string", Default: ""},
				{Name: "Project_id", Type: "int", Nullable: true},
				notes(),
			},
		},
		{
			Name: PickPriorities, Table: "PickPriorities", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "AbsolutePriority", Type: "int", Unique: true, Required: true},
				{Name: "PriorityWords", Type: "string", Default: ""},
				notes(),
			},
		},
		{
			Name: WorkOrderPartsNeeded, Table: "WorkOrderPartsNeeded", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "WorkOrders_id", Type: "int", Nullable: true},
				{Name: "Parts_id", Type: "int", Nullable: true},
				{Name: "targetQty", Type: "int", Default: 0},
				{Name: "status", Type: "string", Default: ""},
				{Name: "priority", Type: "string", Default: ""},
				notes(),
			},
		},
		{
			Name: TagPrefixes, Table: "TagPrefixes", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "Prefix", Type: "string", Default: ""},
				{Name: "Parts_id", Type: "int", Nullable: true},
				{Name: "boxqty", Type: "string", Default: ""},
				notes(),
			},
		},
		{
			Name: BoxConfigurations, Table: "BoxConfigurations", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "Parts_id", Type: "int", Nullable: true},
				{Name: "palletqty", Type: "int", Default: 0},
				{Name: "boxqty", Type: "int", Default: 0},
				{Name: "unitqty", Type: "int", Default: 1},
				notes(),
			},
		},
		{
			Name: Scans, Table: "Scans", PrimaryKey: idKey(),
			Fields: []metadata.Field{
				{Name: "id", Type: "int"},
				{Name: "pickDate", Type: "date"},
				{Name: "wave", Type: "int", Default: 1},
				{Name: "TagID", Type: "string", Unique: true, Required: true},
				{Name: "Parts_id", Type: "int", Nullable: true},
				{Name: "WO_id", Type: "int", Nullable: true},
				{Name: "qty", Type: "int", Default: 0},
				{Name: "splitQtyToLeave", Type: "int", Nullable: true},
				{Name: "palletMark", Type: "boolean", Default: false},
				{Name: "staged_at", Type: "string", Default: ""},
				notes(),
			},
		},
	}
}

// Relations links parents to dependents. Dependents go with their part or
// work order; a project in use cannot be deleted.
func Relations() []*metadata.Relation {
	rel := func(name, source, target, fk, onDelete string) *metadata.Relation {
		return &metadata.Relation{
			Name: name, Type: "one_to_many",
			Source: source, Target: target,
			SourceKey: "id", TargetKey: fk,
			OnDelete: onDelete,
		}
	}
	return []*metadata.Relation{
		rel("parts_needed", WorkOrders, WorkOrderPartsNeeded, "WorkOrders_id", "cascade"),
		rel("workorders_needing_part", Parts, WorkOrderPartsNeeded, "Parts_id", "cascade"),
		rel("tag_prefixes", Parts, TagPrefixes, "Parts_id", "cascade"),
		rel("box_configurations", Parts, BoxConfigurations, "Parts_id", "cascade"),
		rel("part_scans", Parts, Scans, "Parts_id", "cascade"),
		rel("workorder_scans", WorkOrders, Scans, "WO_id", "cascade"),
		rel("project_workorders", Projects, WorkOrders, "Project_id", "restrict"),
	}
}

// Registry returns a registry loaded with the application schema.
func Registry() (*metadata.Registry, error) {
	reg := metadata.NewRegistry()
	if err := reg.Load(Entities(), Relations()); err != nil {
		return nil, err
	}
	return reg, nil
}

// DefaultPickPriorities are written to an empty PickPriorities table.
func DefaultPickPriorities() []map[string]any {
	return []map[string]any{
		{"AbsolutePriority": 1, "PriorityWords": "Hot", "notes": "pick before anything else"},
		{"AbsolutePriority": 2, "PriorityWords": "Rush"},
		{"AbsolutePriority": 5, "PriorityWords": "Normal"},
		{"AbsolutePriority": 9, "PriorityWords": "Backfill"},
	}
}

// Seed fills the lookup tables the forms rely on. It returns the number of
// rows written.
func Seed(ctx context.Context, s store.Seeder, reg *metadata.Registry) (int, error) {
	return store.Seed(ctx, s, reg.GetEntity(PickPriorities), DefaultPickPriorities())
}

// Choice list names.
const (
	ListCIMSPKNum = "CIMSPKNum"
	ListWOMAid    = "WOMAid"
	ListProject   = "Project"
	ListParts     = "Parts"
	// ListPickPriority suggests priority words for parts-needed lines.
	ListPickPriority = "PickPriority"
)

// NewChoiceCache registers the application's shared choice lists. The
// lists are empty until refreshed.
func NewChoiceCache(s form.Store, reg *metadata.Registry) *form.ChoiceCache {
	cache := form.NewChoiceCache(s)
	wo := reg.GetEntity(WorkOrders)
	cache.Register(ListCIMSPKNum, form.FieldChoices(wo, "id", "CIMSNum"))
	cache.Register(ListWOMAid, form.FieldChoices(wo, "id", "WOMAid"))
	cache.Register(ListProject, form.FieldChoices(reg.GetEntity(Projects), "id", "ProjectName", form.WithNone("---")))
	cache.Register(ListParts, form.FieldChoices(reg.GetEntity(Parts), "id", "GPN"))
	cache.Register(ListPickPriority, form.FieldChoices(reg.GetEntity(PickPriorities), "PriorityWords", "PriorityWords"))
	return cache
}
