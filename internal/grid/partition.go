package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ZoneID identifies one grid cell for interest management and ownership.
type ZoneID int32

// InvalidZone is returned when a position falls outside the grid.
// It is never valid under any style.
const InvalidZone ZoneID = -1

// RuleSeparator joins the fields of a parenting rule string.
const RuleSeparator = ":"

var (
	ErrInvalidGeometry = errors.New("invalid grid geometry")
	ErrBadRule         = errors.New("malformed parenting rule")
)

// Style selects which zone ids a grid accepts.
type Style int

const (
	// StyleCartesian accepts only the (2r+1)² cell zones.
	StyleCartesian Style = iota
	// StyleCartesianStated also accepts the stated zones [0, startingZone),
	// used for objects placed on the grid without a spatial cell.
	StyleCartesianStated
)

func (s Style) String() string {
	switch s {
	case StyleCartesian:
		return "Cartesian"
	case StyleCartesianStated:
		return "CartesianStated"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// ParseStyle maps a style name (case-insensitive) to a Style.
func ParseStyle(name string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cartesian":
		return StyleCartesian, nil
	case "cartesianstated":
		return StyleCartesianStated, nil
	default:
		return 0, fmt.Errorf("%w: unknown style %q", ErrInvalidGeometry, name)
	}
}

// Partition maps grid-local positions to zone ids. Immutable after New,
// so it can be shared freely; every method is O(1) except the neighbourhood
// queries, which are O(r²).
//
// Cells are indexed (cx, cy) with cx, cy in [-radius, radius]; cell (0, 0)
// spans [0, cellSize) on both axes. Zone ids are laid out row-major:
//
//	zone = startingZone + (cy+radius)*side + (cx+radius),  side = 2*radius+1
type Partition struct {
	startingZone ZoneID
	cellSize     float64
	radius       int32
	side         int32
	style        Style
}

// New validates the geometry and builds a Partition.
func New(startingZone ZoneID, cellSize float64, radius int, style Style) (*Partition, error) {
	if startingZone < 0 {
		return nil, fmt.Errorf("%w: starting zone %d is negative", ErrInvalidGeometry, startingZone)
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: cell size %v must be positive and finite", ErrInvalidGeometry, cellSize)
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: radius %d is negative", ErrInvalidGeometry, radius)
	}
	if style != StyleCartesian && style != StyleCartesianStated {
		return nil, fmt.Errorf("%w: unsupported style %s", ErrInvalidGeometry, style)
	}
	side := 2*int64(radius) + 1
	if int64(startingZone)+side*side-1 > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d zones from %d overflow the zone id space",
			ErrInvalidGeometry, side*side, startingZone)
	}
	return &Partition{
		startingZone: startingZone,
		cellSize:     cellSize,
		radius:       int32(radius),
		side:         int32(side),
		style:        style,
	}, nil
}

func (p *Partition) StartingZone() ZoneID { return p.startingZone }
func (p *Partition) CellSize() float64    { return p.cellSize }
func (p *Partition) Radius() int          { return int(p.radius) }
func (p *Partition) Style() Style         { return p.style }

// ZoneCount is the number of spatial zones, excluding stated zones.
func (p *Partition) ZoneCount() int { return int(p.side) * int(p.side) }

// ResolveZone returns the zone containing pos, or InvalidZone when the cell
// lies outside [-radius, radius] on either axis. Z is ignored.
func (p *Partition) ResolveZone(pos Vec3) ZoneID {
	cx, okX := p.cellCoord(pos.X)
	cy, okY := p.cellCoord(pos.Y)
	if !okX || !okY {
		return InvalidZone
	}
	return p.encode(cx, cy)
}

func (p *Partition) cellCoord(v float64) (int32, bool) {
	c := math.Floor(v / p.cellSize)
	r := float64(p.radius)
	// NaN fails both comparisons.
	if !(c >= -r && c <= r) {
		return 0, false
	}
	return int32(c), true
}

func (p *Partition) encode(cx, cy int32) ZoneID {
	return p.startingZone + ZoneID((cy+p.radius)*p.side+(cx+p.radius))
}

func (p *Partition) inGrid(zone ZoneID) bool {
	return zone >= p.startingZone && int64(zone) < int64(p.startingZone)+int64(p.side)*int64(p.side)
}

// IsValidZone reports whether zone can be produced by this grid's encoding.
func (p *Partition) IsValidZone(zone ZoneID) bool {
	if p.inGrid(zone) {
		return true
	}
	if p.style == StyleCartesianStated {
		return zone >= 0 && zone < p.startingZone
	}
	return false
}

// Cell decodes a spatial zone into its cell coordinates.
func (p *Partition) Cell(zone ZoneID) (cx, cy int32, ok bool) {
	if !p.inGrid(zone) {
		return 0, 0, false
	}
	off := int32(zone - p.startingZone)
	return off%p.side - p.radius, off/p.side - p.radius, true
}

// CellOrigin returns the grid-local corner (minimum x, y) of zone's cell.
func (p *Partition) CellOrigin(zone ZoneID) (Vec3, bool) {
	cx, cy, ok := p.Cell(zone)
	if !ok {
		return Vec3{}, false
	}
	return Vec3{X: float64(cx) * p.cellSize, Y: float64(cy) * p.cellSize}, true
}

// CellCenter returns the grid-local centre of zone's cell.
func (p *Partition) CellCenter(zone ZoneID) (Vec3, bool) {
	o, ok := p.CellOrigin(zone)
	if !ok {
		return Vec3{}, false
	}
	half := p.cellSize / 2
	return Vec3{X: o.X + half, Y: o.Y + half}, true
}

// LocalPosition converts a grid-local position into zone's cell frame.
func (p *Partition) LocalPosition(zone ZoneID, pos Vec3) (Vec3, bool) {
	o, ok := p.CellOrigin(zone)
	if !ok {
		return Vec3{}, false
	}
	return pos.Sub(o), true
}

// Contains reports whether pos still lies inside zone's cell. It uses the
// same floor(v/cellSize) cell index as ResolveZone, so the cell is
// half-open and non-finite coordinates are never inside.
func (p *Partition) Contains(zone ZoneID, pos Vec3) bool {
	cx, cy, ok := p.Cell(zone)
	if !ok {
		return false
	}
	px, okX := p.cellCoord(pos.X)
	py, okY := p.cellCoord(pos.Y)
	return okX && okY && px == cx && py == cy
}

// ConcentricZones returns the zones at exactly Chebyshev distance r from
// zone, clipped to the grid, in row-major order. r == 0 yields zone itself.
func (p *Partition) ConcentricZones(zone ZoneID, r int) []ZoneID {
	return p.neighbourhood(zone, r, true)
}

// InterestZones returns every zone within Chebyshev distance r of zone,
// zone included, clipped to the grid, in row-major order.
func (p *Partition) InterestZones(zone ZoneID, r int) []ZoneID {
	return p.neighbourhood(zone, r, false)
}

func (p *Partition) neighbourhood(zone ZoneID, r int, ringOnly bool) []ZoneID {
	cx, cy, ok := p.Cell(zone)
	if !ok || r < 0 {
		return nil
	}
	rr := int32(r)
	if rr > 2*p.radius {
		rr = 2 * p.radius
		if ringOnly && int32(r) > rr {
			return nil
		}
	}
	var zones []ZoneID
	for dy := -rr; dy <= rr; dy++ {
		y := cy + dy
		if y < -p.radius || y > p.radius {
			continue
		}
		for dx := -rr; dx <= rr; dx++ {
			x := cx + dx
			if x < -p.radius || x > p.radius {
				continue
			}
			if ringOnly && abs32(dx) != rr && abs32(dy) != rr {
				continue
			}
			zones = append(zones, p.encode(x, y))
		}
	}
	return zones
}

// ParentingRules returns the style name and the rule string peers use to
// rebuild this grid: "startingZone:cellSize:radius".
func (p *Partition) ParentingRules() (style, rule string) {
	rule = strings.Join([]string{
		strconv.FormatInt(int64(p.startingZone), 10),
		strconv.FormatFloat(p.cellSize, 'f', -1, 64),
		strconv.FormatInt(int64(p.radius), 10),
	}, RuleSeparator)
	return p.style.String(), rule
}

// ParseParentingRules rebuilds a Partition from ParentingRules output.
func ParseParentingRules(style, rule string) (*Partition, error) {
	st, err := ParseStyle(style)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(rule, RuleSeparator)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadRule, rule)
	}
	start, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: starting zone: %v", ErrBadRule, err)
	}
	cell, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: cell size: %v", ErrBadRule, err)
	}
	radius, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: radius: %v", ErrBadRule, err)
	}
	return New(ZoneID(start), cell, radius, st)
}

func abs32(n int32) int32 {
	if n < 0 {
		return -n
	}
	return n
}
