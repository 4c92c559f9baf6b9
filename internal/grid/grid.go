// Package grid holds the editable sample grid: one text cell per
// (row, column) pair, live range validation and column paste-fill.
package grid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/viralforge/fieldcapture/internal/domain"
)

// Pos addresses a cell. Row is 1-based.
type Pos struct {
	Row   int
	Field domain.Field
}

// Cell is the current state of one input.
type Cell struct {
	Pos
	Text string
	// Invalid is set when Text is non-empty and fails its column range.
	Invalid bool
}

// Grid is built for one (mode, n) pair and replaced wholesale on rebuild.
// Cells are kept in document order: row by row, columns in mode order.
type Grid struct {
	cfg      domain.ValidationConfig
	mode     domain.Mode
	n        int
	cells    []Cell
	byColumn map[domain.Field][]int
	ready    bool
}

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// Build creates a grid of n rows for mode. prefill[row-1][field], when
// present, seeds the cell text. A non-positive n yields an empty grid.
func Build(cfg domain.ValidationConfig, mode domain.Mode, n int, prefill []map[domain.Field]string) *Grid {
	if n < 0 {
		n = 0
	}
	columns := mode.Columns()
	g := &Grid{
		cfg:      cfg,
		mode:     mode,
		n:        n,
		cells:    make([]Cell, 0, n*len(columns)),
		byColumn: make(map[domain.Field][]int, len(columns)),
	}
	for row := 1; row <= n; row++ {
		for _, f := range columns {
			text := ""
			if row-1 < len(prefill) && prefill[row-1] != nil {
				text = prefill[row-1][f]
			}
			g.byColumn[f] = append(g.byColumn[f], len(g.cells))
			g.cells = append(g.cells, Cell{Pos: Pos{Row: row, Field: f}, Text: text})
		}
	}
	g.revalidate()
	return g
}

// Ready reports submit-readiness. A nil grid is never ready.
func (g *Grid) Ready() bool {
	return g != nil && g.ready
}

func (g *Grid) Mode() domain.Mode {
	if g == nil {
		return ""
	}
	return g.mode
}

// Rows is the n the grid was built with.
func (g *Grid) Rows() int {
	if g == nil {
		return 0
	}
	return g.n
}

// Len is the number of inputs.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.cells)
}

func (g *Grid) Columns() []domain.Field {
	if g == nil {
		return nil
	}
	return g.mode.Columns()
}

// Cells returns a copy of every cell in document order.
func (g *Grid) Cells() []Cell {
	if g == nil {
		return nil
	}
	return append([]Cell(nil), g.cells...)
}

func (g *Grid) Cell(pos Pos) (Cell, bool) {
	idx, ok := g.index(pos)
	if !ok {
		return Cell{}, false
	}
	return g.cells[idx], true
}

func (g *Grid) Text(pos Pos) string {
	c, _ := g.Cell(pos)
	return c.Text
}

// First is the first cell in document order.
func (g *Grid) First() (Pos, bool) {
	if g.Len() == 0 {
		return Pos{}, false
	}
	return g.cells[0].Pos, true
}

// Set replaces the text of one cell and re-validates the grid.
func (g *Grid) Set(pos Pos, text string) error {
	idx, ok := g.index(pos)
	if !ok {
		return fmt.Errorf("%w: no cell at row %d %s", domain.ErrInvalidInput, pos.Row, pos.Field)
	}
	g.cells[idx].Text = text
	g.revalidate()
	return nil
}

// Paste distributes multi-line clipboard text down pos's column starting at
// pos. Lines end at CRLF, CR or LF; they are trimmed and blank lines dropped.
// Lines past the last row are discarded. handled is false when clip has no
// line break, in which case the caller applies the paste as ordinary text.
func (g *Grid) Paste(pos Pos, clip string) (filled int, handled bool) {
	if !strings.ContainsAny(clip, "\r\n") {
		return 0, false
	}
	if _, ok := g.index(pos); !ok {
		return 0, true
	}
	var lines []string
	for _, line := range lineBreak.Split(clip, -1) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	column := g.byColumn[pos.Field]
	for i, line := range lines {
		at := pos.Row - 1 + i
		if at >= len(column) {
			break
		}
		g.cells[column[at]].Text = line
		filled++
	}
	g.revalidate()
	return filled, true
}

// Next is the cell after pos in document order. It does not wrap.
func (g *Grid) Next(pos Pos) (Pos, bool) {
	idx, ok := g.index(pos)
	if !ok || idx+1 >= len(g.cells) {
		return pos, false
	}
	return g.cells[idx+1].Pos, true
}

// Prev is the cell before pos in document order. It does not wrap.
func (g *Grid) Prev(pos Pos) (Pos, bool) {
	idx, ok := g.index(pos)
	if !ok || idx == 0 {
		return pos, false
	}
	return g.cells[idx-1].Pos, true
}

// Move shifts pos by rows and columns, clamped to the grid.
func (g *Grid) Move(pos Pos, dRow, dCol int) Pos {
	if g.Len() == 0 {
		return pos
	}
	columns := g.Columns()
	col := 0
	for i, f := range columns {
		if f == pos.Field {
			col = i
		}
	}
	row := clamp(pos.Row+dRow, 1, g.n)
	col = clamp(col+dCol, 0, len(columns)-1)
	return Pos{Row: row, Field: columns[col]}
}

// Samples parses the current texts. Unparsable cells come back unset.
func (g *Grid) Samples() []domain.Sample {
	if g == nil {
		return nil
	}
	out := make([]domain.Sample, g.n)
	for _, c := range g.cells {
		if v, ok := domain.ParseNumber(c.Text); ok {
			out[c.Row-1].Put(c.Field, domain.Value(v))
		}
	}
	return out
}

// Invalid lists flagged cells in document order.
func (g *Grid) Invalid() []Pos {
	if g == nil {
		return nil
	}
	var out []Pos
	for _, c := range g.cells {
		if c.Invalid {
			out = append(out, c.Pos)
		}
	}
	return out
}

// revalidate scans every cell; it runs after each edit and after paste-fill.
func (g *Grid) revalidate() {
	ready := len(g.cells) > 0
	for i := range g.cells {
		c := &g.cells[i]
		ok := g.cfg.Accepts(c.Field, c.Text)
		c.Invalid = c.Text != "" && !ok
		if !ok {
			ready = false
		}
	}
	g.ready = ready
}

func (g *Grid) index(pos Pos) (int, bool) {
	if g == nil {
		return 0, false
	}
	column, ok := g.byColumn[pos.Field]
	if !ok || pos.Row < 1 || pos.Row > len(column) {
		return 0, false
	}
	return column[pos.Row-1], true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
