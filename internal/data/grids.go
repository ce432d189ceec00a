package data

import (
	"fmt"
	"os"
	"sort"

	"github.com/l1jgo/cartgrid/internal/grid"
	"gopkg.in/yaml.v3"
)

// GridDef describes one hosted grid and the geometry of its partition.
type GridDef struct {
	ID           uint32  `yaml:"id"`
	Name         string  `yaml:"name"`
	StartingZone int32   `yaml:"starting_zone"`
	CellSize     float64 `yaml:"cell_size"`
	Radius       int     `yaml:"radius"`
	Style        string  `yaml:"style"` // "Cartesian" (default) or "CartesianStated"
}

// Partition builds the grid partition this definition describes.
func (d *GridDef) Partition() (*grid.Partition, error) {
	style := grid.StyleCartesian
	if d.Style != "" {
		s, err := grid.ParseStyle(d.Style)
		if err != nil {
			return nil, err
		}
		style = s
	}
	return grid.New(grid.ZoneID(d.StartingZone), d.CellSize, d.Radius, style)
}

type gridFile struct {
	Grids []GridDef `yaml:"grids"`
}

// GridTable holds grid definitions keyed by id.
type GridTable struct {
	grids map[uint32]*GridDef
}

// LoadGridTable loads grids.yaml.
func LoadGridTable(path string) (*GridTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid list: %w", err)
	}
	t, err := ParseGridTable(raw)
	if err != nil {
		return nil, fmt.Errorf("parse grid list: %w", err)
	}
	return t, nil
}

// ParseGridTable decodes a grid list and checks every entry's geometry.
func ParseGridTable(raw []byte) (*GridTable, error) {
	var f gridFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	t := &GridTable{grids: make(map[uint32]*GridDef, len(f.Grids))}
	for i := range f.Grids {
		d := &f.Grids[i]
		if _, dup := t.grids[d.ID]; dup {
			return nil, fmt.Errorf("grid %d defined twice", d.ID)
		}
		if _, err := d.Partition(); err != nil {
			return nil, fmt.Errorf("grid %d (%s): %w", d.ID, d.Name, err)
		}
		t.grids[d.ID] = d
	}
	return t, nil
}

// Get returns the definition for id, or nil if none.
func (t *GridTable) Get(id uint32) *GridDef {
	return t.grids[id]
}

// All returns every definition, ascending by id.
func (t *GridTable) All() []*GridDef {
	out := make([]*GridDef, 0, len(t.grids))
	for _, d := range t.grids {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *GridTable) Count() int {
	return len(t.grids)
}
