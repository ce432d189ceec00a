package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/l1jgo/cartgrid/internal/grid"
	"go.uber.org/zap"
)

var (
	ErrUnknownGrid   = errors.New("unknown grid")
	ErrDuplicateGrid = errors.New("grid already exists")
)

// Service hosts every grid of the process. All grids share one scheduler
// and notifier. Game loop goroutine only.
type Service struct {
	grids map[GridID]*Grid
	deps  Deps
	log   *zap.Logger
}

func NewService(deps Deps) *Service {
	deps = deps.withDefaults()
	return &Service{
		grids: make(map[GridID]*Grid),
		deps:  deps,
		log:   deps.Log,
	}
}

// CreateGrid starts hosting a grid with the given partition.
func (s *Service) CreateGrid(id GridID, name string, part *grid.Partition) (*Grid, error) {
	if _, ok := s.grids[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateGrid, id)
	}
	g := NewGrid(id, name, part, s.deps)
	s.grids[id] = g

	style, rule := part.ParentingRules()
	s.log.Info("grid created",
		zap.Uint32("grid", uint32(id)),
		zap.String("name", name),
		zap.String("style", style),
		zap.String("rule", rule),
	)
	return g, nil
}

// RemoveGrid closes and forgets a grid.
func (s *Service) RemoveGrid(id GridID) error {
	g, ok := s.grids[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGrid, id)
	}
	g.Close()
	delete(s.grids, id)
	return nil
}

func (s *Service) Grid(id GridID) (*Grid, error) {
	g, ok := s.grids[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGrid, id)
	}
	return g, nil
}

// Grids returns every hosted grid, ascending by id.
func (s *Service) Grids() []*Grid {
	out := make([]*Grid, 0, len(s.grids))
	for _, g := range s.grids {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Add, Remove and UpdatePosition route to the named grid. The only error
// they return is ErrUnknownGrid; everything else is contained in the grid.
func (s *Service) Add(gridID GridID, id ObjectID, pos grid.Vec3) error {
	g, err := s.Grid(gridID)
	if err != nil {
		return err
	}
	g.Add(id, pos)
	return nil
}

func (s *Service) Remove(gridID GridID, id ObjectID) error {
	g, err := s.Grid(gridID)
	if err != nil {
		return err
	}
	g.Remove(id)
	return nil
}

func (s *Service) UpdatePosition(gridID GridID, id ObjectID, pos grid.Vec3) error {
	g, err := s.Grid(gridID)
	if err != nil {
		return err
	}
	g.UpdatePosition(id, pos)
	return nil
}

// TrackedObjects counts objects across all grids.
func (s *Service) TrackedObjects() int {
	n := 0
	for _, g := range s.grids {
		n += g.reg.Len()
	}
	return n
}

// Close tears down every grid.
func (s *Service) Close() {
	for id, g := range s.grids {
		g.Close()
		delete(s.grids, id)
	}
}
