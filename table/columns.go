package table

import "github.com/ViVse/ecg-v2/ecg"

// ColumnID is the accessor key of a column.
type ColumnID string

const (
	ColumnRowID    ColumnID = "id"
	ColumnIsNormal ColumnID = "isNormal"
	ColumnS        ColumnID = "S"
	ColumnV        ColumnID = "V"
	ColumnF        ColumnID = "F"
	ColumnQ        ColumnID = "Q"
	ColumnAction   ColumnID = "action"
)

// SortableColumns lists the columns that toggle sorting, in display order.
var SortableColumns = []ColumnID{ColumnRowID, ColumnIsNormal, ColumnS, ColumnV, ColumnF, ColumnQ}

// CellKind tells the renderer which widget a cell needs.
type CellKind int

const (
	CellText CellKind = iota
	CellCheckbox
	CellAction
)

// Cell is a rendered cell value.
type Cell struct {
	Kind     CellKind
	Text     string
	Checked  bool
	Editable bool
}

// Column describes header and cell rendering for one column. Tooltip lists
// the anomaly subtypes a class column aggregates.
type Column struct {
	ID       ColumnID
	Title    string
	Sortable bool
	Tooltip  []string
	Width    int
	Cell     func(Row) Cell
}

// Columns returns the table definition. The action column offers the edit
// affordance only when editing is enabled, and never on the aggregate row.
func Columns(editing bool) []Column {
	cols := []Column{
		{
			ID:       ColumnRowID,
			Title:    "Id",
			Sortable: true,
			Width:    9,
			Cell: func(r Row) Cell {
				return Cell{Kind: CellText, Text: r.ID()}
			},
		},
		{
			ID:       ColumnIsNormal,
			Title:    "Anomaly",
			Sortable: true,
			Width:    9,
			Cell: func(r Row) Cell {
				return Cell{Kind: CellCheckbox, Checked: r.Anomalous()}
			},
		},
	}
	for _, c := range ecg.AnomalyClasses {
		class := c
		cols = append(cols, Column{
			ID:       ColumnID(class),
			Title:    string(class),
			Sortable: true,
			Tooltip:  class.Subtypes(),
			Width:    8,
			Cell: func(r Row) Cell {
				return Cell{Kind: CellText, Text: FormatClassCell(r, class)}
			},
		})
	}
	cols = append(cols, Column{
		ID:    ColumnAction,
		Title: "",
		Width: 6,
		Cell: func(r Row) Cell {
			return Cell{Kind: CellAction, Editable: editing && !r.IsAggregate()}
		},
	})
	return cols
}

// Find returns the column with id.
func Find(cols []Column, id ColumnID) (Column, bool) {
	for _, c := range cols {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}
