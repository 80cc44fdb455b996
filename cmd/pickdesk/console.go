package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pickdesk/internal/form"
)

const helpText = `commands:
  first | prev | next | last     move between records
  new                            start a new record
  save | delete | dup            write, remove or copy the current record
  goto <key>                     load a record by key
  show                           print the current record
  set <field> <value>            edit a field (an empty value clears it)
  lookup <field> <value>         jump to the record whose field matches
  choices <field>                list the values a field accepts
  refresh                        reload choice lists
  sub <subform>                  select the subform used by the row commands
  rows                           list subform rows
  addrow                         append a subform row
  delrow <i>                     remove subform row i
  row <i> set <field> <value>    edit a field of subform row i
  help | quit`

const tableHelpText = `commands:
  rows                           list every row
  addrow                         append a row
  delrow <i>                     remove row i
  row <i> set <field> <value>    edit a field of row i
  save                           write every change
  refresh                        reload the rows
  help | quit`

// rowList is the row surface shared by subforms and tables.
type rowList interface {
	Label() string
	Rows() []*form.Controller
	Row(i int) *form.Controller
	AddRow(ctx context.Context) (*form.Controller, error)
	DeleteRow(i int) error
}

// console reads commands from in and drives one form or table. It also
// answers the prompts from the same input.
type console struct {
	in   *bufio.Scanner
	out  io.Writer
	c    *form.Controller
	t    *form.Table
	list rowList
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewScanner(in), out: out}
}

func (k *console) AskSaveChanges(_ context.Context, name string) form.Answer {
	switch k.ask(fmt.Sprintf("save changes to %s? [y/n/c] ", name)) {
	case "y", "yes":
		return form.AnswerYes
	case "n", "no":
		return form.AnswerNo
	case "c", "cancel":
		return form.AnswerCancel
	}
	return form.AnswerNone
}

func (k *console) AskConfirmDelete(_ context.Context, name string, key any) form.Answer {
	switch k.ask(fmt.Sprintf("delete %s %v? [y/N] ", name, key)) {
	case "y", "yes":
		return form.AnswerYes
	}
	return form.AnswerNo
}

func (k *console) ShowError(_ context.Context, err error) {
	fmt.Fprintln(k.out, "error:", err)
}

// ask prints prompt and returns the lower-cased reply. EOF answers "".
func (k *console) ask(prompt string) string {
	fmt.Fprint(k.out, prompt)
	if !k.in.Scan() {
		fmt.Fprintln(k.out)
		return ""
	}
	return strings.ToLower(strings.TrimSpace(k.in.Text()))
}

func (k *console) run(ctx context.Context, c *form.Controller) error {
	k.c = c
	if subs := subforms(c); len(subs) > 0 {
		k.list = subs[0]
	}
	c.OnStateChange(func(s form.State) {
		if s.New {
			fmt.Fprintf(k.out, "[%s] new record\n", c.Name())
			return
		}
		mark := ""
		if s.Dirty {
			mark = " *"
		}
		fmt.Fprintf(k.out, "[%s] record %v%s\n", c.Name(), s.Key, mark)
	})
	k.show()
	return k.loop(ctx, k.exec)
}

func (k *console) runTable(ctx context.Context, t *form.Table) error {
	k.t = t
	k.list = t
	fmt.Fprintf(k.out, "[%s] %d row(s)\n", t.Name(), t.Len())
	if err := k.rows(); err != nil {
		return err
	}
	return k.loop(ctx, k.execTable)
}

func (k *console) loop(ctx context.Context, exec func(context.Context, string) (bool, error)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(k.out, "> ")
		if !k.in.Scan() {
			fmt.Fprintln(k.out)
			return k.in.Err()
		}
		line := strings.TrimSpace(k.in.Text())
		if line == "" {
			continue
		}
		quit, err := exec(ctx, line)
		if err != nil {
			var fe *form.Error
			if !errors.As(err, &fe) {
				// form errors were already shown by the controller
				fmt.Fprintln(k.out, "error:", err)
			}
		}
		if quit {
			return nil
		}
	}
}

func (k *console) exec(ctx context.Context, line string) (bool, error) {
	c := k.c
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "first":
		return false, c.First(ctx)
	case "prev":
		return false, c.Previous(ctx)
	case "next":
		return false, c.Next(ctx)
	case "last":
		return false, c.Last(ctx)
	case "new":
		return false, c.Add(ctx)
	case "save":
		return false, c.Save(ctx)
	case "delete":
		return false, c.Delete(ctx)
	case "dup":
		return false, c.Duplicate(ctx, nil)
	case "goto":
		if rest == "" {
			return false, errors.New("usage: goto <key>")
		}
		return false, c.LoadByKey(ctx, rest)
	case "show":
		k.show()
	case "set":
		name, value, _ := strings.Cut(rest, " ")
		if name == "" {
			return false, errors.New("usage: set <field> <value>")
		}
		return false, k.set(ctx, c, name, strings.TrimSpace(value))
	case "lookup":
		name, value, _ := strings.Cut(rest, " ")
		l := c.Lookup(form.LookupMarker + strings.TrimPrefix(name, form.LookupMarker))
		if l == nil {
			return false, fmt.Errorf("no lookup for %q", name)
		}
		return false, l.Select(ctx, strings.TrimSpace(value))
	case "choices":
		k.choices(rest)
	case "refresh":
		return false, c.RefreshChoices(ctx)
	case "sub":
		sf := c.Subform(rest)
		if sf == nil {
			return false, fmt.Errorf("no subform %q", rest)
		}
		k.list = sf
	case "help", "?":
		fmt.Fprintln(k.out, helpText)
	case "quit", "exit":
		return k.quit(ctx, c.Name(), c.IsDirty(), c.Save)
	default:
		if ok, err := k.execRows(ctx, cmd, rest); ok {
			return false, err
		}
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func (k *console) execTable(ctx context.Context, line string) (bool, error) {
	t := k.t
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "save":
		if err := t.Save(ctx); err != nil {
			return false, err
		}
		return false, k.rows()
	case "refresh":
		if err := t.Reload(ctx); err != nil {
			return false, err
		}
		return false, k.rows()
	case "help", "?":
		fmt.Fprintln(k.out, tableHelpText)
	case "quit", "exit":
		return k.quit(ctx, t.Name(), t.IsDirty(), t.Save)
	default:
		if ok, err := k.execRows(ctx, cmd, rest); ok {
			return false, err
		}
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

// execRows runs the row commands against the selected row list. It
// reports whether cmd was one of them.
func (k *console) execRows(ctx context.Context, cmd, rest string) (bool, error) {
	switch cmd {
	case "rows":
		return true, k.rows()
	case "addrow":
		if k.list == nil {
			return true, errors.New("form has no subform")
		}
		_, err := k.list.AddRow(ctx)
		if err == nil {
			err = k.rows()
		}
		return true, err
	case "delrow":
		i, err := k.rowIndex(rest)
		if err != nil {
			return true, err
		}
		if err := k.list.DeleteRow(i); err != nil {
			return true, err
		}
		return true, k.rows()
	case "row":
		return true, k.row(ctx, rest)
	}
	return false, nil
}

func (k *console) set(ctx context.Context, c *form.Controller, name, value string) error {
	if l := c.Lookup(name); l != nil {
		return l.Select(ctx, value)
	}
	a := c.Field(name)
	if a == nil {
		return fmt.Errorf("no field %q", name)
	}
	return a.Input(value)
}

func (k *console) row(ctx context.Context, args string) error {
	idx, rest, _ := strings.Cut(args, " ")
	i, err := k.rowIndex(idx)
	if err != nil {
		return err
	}
	verb, rest, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if verb != "set" {
		return errors.New("usage: row <i> set <field> <value>")
	}
	name, value, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if err := k.set(ctx, k.list.Row(i), name, strings.TrimSpace(value)); err != nil {
		return err
	}
	return k.rows()
}

func (k *console) rowIndex(s string) (int, error) {
	if k.list == nil {
		return 0, errors.New("form has no subform")
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || k.list.Row(i) == nil {
		return 0, fmt.Errorf("no row %q in %s", s, k.list.Label())
	}
	return i, nil
}

func (k *console) quit(ctx context.Context, name string, dirty bool, save func(context.Context) error) (bool, error) {
	if !dirty {
		return true, nil
	}
	switch k.AskSaveChanges(ctx, name) {
	case form.AnswerYes:
		if err := save(ctx); err != nil {
			return false, err
		}
		return true, nil
	case form.AnswerNo:
		return true, nil
	}
	return false, nil
}

func (k *console) show() {
	c := k.c
	page := ""
	for _, el := range c.Elements() {
		switch el := el.(type) {
		case form.Adapter:
			d := el.Def()
			if p := d.Position.Page; p != "" && p != page {
				page = p
				fmt.Fprintf(k.out, "-- %s --\n", page)
			}
			if d.IsLookup() {
				continue
			}
			mark := ""
			if el.IsDirty() {
				mark = " *"
			}
			fmt.Fprintf(k.out, "  %-16s %s%s\n", d.DisplayLabel()+":", el.Display(), mark)
		case *form.Subform:
			if p := el.Def().Position.Page; p != "" && p != page {
				page = p
				fmt.Fprintf(k.out, "-- %s --\n", page)
			}
			fmt.Fprintf(k.out, "  %-16s %d row(s)\n", el.Def().DisplayLabel()+":", el.Len())
		}
	}
}

func (k *console) rows() error {
	if k.list == nil {
		return errors.New("form has no subform")
	}
	fmt.Fprintf(k.out, "%s:\n", k.list.Label())
	for i, row := range k.list.Rows() {
		var cells []string
		for _, d := range row.Defs() {
			a := row.Field(d.Name)
			if a == nil {
				continue
			}
			cells = append(cells, fmt.Sprintf("%s=%s", d.Name, a.Display()))
		}
		mark := ""
		if row.IsNewRecord() || row.IsDirty() {
			mark = " *"
		}
		fmt.Fprintf(k.out, "  %d: %s%s\n", i, strings.Join(cells, " "), mark)
	}
	return nil
}

func (k *console) choices(name string) {
	switch a := k.c.Field(name).(type) {
	case *form.FieldAdapter:
		for _, ch := range a.Choices() {
			fmt.Fprintf(k.out, "  %v\t%s\n", ch.Value, ch.Label)
		}
	case *form.LookupAdapter:
		for _, ch := range a.Candidates() {
			fmt.Fprintf(k.out, "  %s\n", ch.Label)
		}
	default:
		fmt.Fprintf(k.out, "no choices for %q\n", name)
	}
}

func subforms(c *form.Controller) []*form.Subform {
	var out []*form.Subform
	for _, el := range c.Elements() {
		if sf, ok := el.(*form.Subform); ok {
			out = append(out, sf)
		}
	}
	return out
}
