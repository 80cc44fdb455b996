package formdef

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickdesk/internal/form"
	"pickdesk/internal/store"
)

const schemaYAML = `
entities:
  - name: Part
    table: parts
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: GPN, type: string, unique: true}
      - {name: active, type: boolean, default: true}
  - name: Box
    table: boxes
    primary_key: {field: id, type: int, generated: true}
    fields:
      - {name: id, type: int}
      - {name: Part_id, type: int}
      - {name: boxqty, type: int}
relations:
  - {name: boxes, type: one_to_many, source: Part, target: Box, source_key: id, target_key: Part_id}
`

const partsYAML = `
name: Parts
entity: Part
fields:
  - name: id
    kind: text
    read_only: true
  - name: GPN
    kind: text
    transform: upper(trim(value))
    position: {row: 0, col: 1}
  - name: "@GPN"
    label: lookup GPN
    kind: lookup
  - name: active
    kind: checkbox
    "yes": Active
    "no": Retired
    position: {row: 1, col: 0, page: status}
  - name: boxes
    kind: subform
    relation: boxes
    fields:
      - {name: boxqty, kind: text, initial: 1}
`

func TestParseAndBuildForm(t *testing.T) {
	ctx := context.Background()
	reg, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	f, err := Parse([]byte(partsYAML))
	require.NoError(t, err)
	assert.Equal(t, "Parts", f.Name)

	opts, err := f.Options(reg)
	require.NoError(t, err)
	require.Len(t, opts.Fields, 5)
	assert.Equal(t, form.CheckboxField{YesNo: &form.YesNo{Yes: "Active", No: "Retired"}}, opts.Fields[3].Kind)
	assert.Equal(t, "status", opts.Fields[3].Position.Page)

	opts.Store = store.NewMemoryStore(reg)
	c, err := form.New(ctx, opts)
	require.NoError(t, err)

	require.NoError(t, c.Field("GPN").Input(" ab-1 "))
	assert.Equal(t, "AB-1", c.Field("GPN").Value())
	row, err := c.Subform("boxes").AddRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Field("boxqty").Value())
	require.NoError(t, c.Save(ctx))
	assert.Equal(t, int64(1), c.Key())
	assert.Equal(t, "Active", c.Field("active").Display())
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	reg, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)

	tests := map[string]string{
		"unknown key":     "name: P\nentity: Part\ncolour: red\n",
		"no name":         "entity: Part\n",
		"no entity":       "name: P\n",
		"unknown kind":    "name: P\nentity: Part\nfields:\n  - {name: GPN, kind: slider}\n",
		"missing kind":    "name: P\nentity: Part\nfields:\n  - {name: GPN}\n",
		"bad transform":   "name: P\nentity: Part\nfields:\n  - {name: GPN, kind: text, transform: 'upper('}\n",
		"unknown entity":  "name: P\nentity: Crate\nfields:\n  - {name: GPN, kind: text}\n",
		"bad nested kind": "name: P\nentity: Part\nfields:\n  - {name: boxes, kind: subform, relation: boxes, fields: [{name: boxqty, kind: dial}]}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(body))
			if err == nil {
				_, err = f.Options(reg)
			}
			require.Error(t, err)
			assert.True(t, form.IsConfig(err), "got %v", err)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_parts.yaml"), []byte(partsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_boxes.yml"), []byte("name: Boxes\nentity: Box\nfields:\n  - {name: boxqty, kind: text}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	forms, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, forms, 2)
	assert.Equal(t, "Boxes", forms[0].Name)
	assert.Equal(t, "Parts", forms[1].Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_dup.yaml"), []byte(partsYAML), 0o644))
	_, err = LoadDir(dir)
	assert.True(t, form.IsConfig(err))
}

func TestParseSchemaRejectsBadRelation(t *testing.T) {
	_, err := ParseSchema([]byte(`
entities:
  - name: Part
    table: parts
    primary_key: {field: id, type: int}
    fields: [{name: id, type: int}]
relations:
  - {name: boxes, type: one_to_many, source: Part, target: Box, target_key: Part_id}
`))
	assert.Error(t, err)
}
