package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScript(t *testing.T, form string, lines ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PICKDESK_DATABASE_DRIVER", "memory")
	t.Setenv("PICKDESK_LOG_LEVEL", "error")

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, run(context.Background(), "", form, in, &out))
	return out.String()
}

func TestConsoleEditsWorkOrderWithRows(t *testing.T) {
	out := runScript(t, "workorders",
		"set CIMSNum c-9",
		"set WOMAid WO-9",
		"addrow",
		"row 0 set targetQty 3",
		"save",
		"rows",
		"show",
		"quit",
	)

	assert.Contains(t, out, "[Work Orders] record 1")
	assert.Contains(t, out, "WorkOrders_id=WO-9")
	assert.Contains(t, out, "targetQty=3")
	assert.Contains(t, out, "C-9")
	assert.Contains(t, out, "-- pg 2 --")
	assert.NotContains(t, out, "error:")
}

func TestConsolePromptsBeforeDiscarding(t *testing.T) {
	out := runScript(t, "projects",
		"set ProjectName Apollo",
		"new",
		"c",
		"quit",
		"n",
	)

	assert.Equal(t, 2, strings.Count(out, "save changes to Projects? [y/n/c] "))
}

func TestConsoleReportsBadCommands(t *testing.T) {
	out := runScript(t, "priorities",
		"bogus",
		"rows",
		"set nope 1",
		"goto 99",
		"quit",
	)

	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "form has no subform")
	assert.Contains(t, out, `no field "nope"`)
	assert.Contains(t, out, "not found")
}

func TestConsoleDeleteAsksForConfirmation(t *testing.T) {
	out := runScript(t, "priorities",
		"delete",
		"n",
		"delete",
		"y",
		"show",
		"quit",
	)

	assert.Equal(t, 2, strings.Count(out, "delete Pick Priorities 1? [y/N] "))
	assert.Contains(t, out, "[Pick Priorities] record 2")
}

func TestConsoleEditsProjectsTable(t *testing.T) {
	out := runScript(t, "projectstable",
		"addrow",
		"row 0 set ProjectName Apollo",
		"addrow",
		"delrow 1",
		"save",
		"row 0 set Color red",
		"quit",
		"y",
	)

	assert.Contains(t, out, "[Projects] 0 row(s)")
	assert.Contains(t, out, "0: id= ProjectName=Apollo")
	assert.Contains(t, out, "0: id=1 ProjectName=Apollo Color=\n")
	assert.Equal(t, 1, strings.Count(out, "save changes to Projects? [y/n/c] "))
	assert.NotContains(t, out, "error:")
}
