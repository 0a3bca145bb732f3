// Package world encodes the maze grid, tile classification, and the
// line-of-sight vision computation agents use to observe it.
package world

import "fmt"

// TileType classifies a single grid cell.
type TileType int

// Tile classifications. OutOfBounds is never stored in a Maze's grid —
// it is only ever returned by Classify for coordinates outside the grid.
const (
	Empty TileType = iota
	Wall
	Goal
	OutOfBounds
)

func (t TileType) String() string {
	switch t {
	case Empty:
		return "empty"
	case Wall:
		return "wall"
	case Goal:
		return "goal"
	case OutOfBounds:
		return "out_of_bounds"
	default:
		return "unknown"
	}
}

// Maze is immutable reference data once constructed.
type Maze struct {
	ID     int64
	Width  int
	Height int
	Grid   [][]TileType // Grid[y][x]
	StartX int
	StartY int
}

// NewMaze validates and constructs a Maze. Invariants enforced:
// width/height positive, start tile in-bounds and EMPTY, exactly one
// GOAL tile in the grid.
func NewMaze(width, height int, grid [][]TileType, startX, startY int) (*Maze, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("maze: width and height must be positive, got %dx%d", width, height)
	}
	if len(grid) != height {
		return nil, fmt.Errorf("maze: grid has %d rows, want %d", len(grid), height)
	}
	goals := 0
	for y, row := range grid {
		if len(row) != width {
			return nil, fmt.Errorf("maze: row %d has %d columns, want %d", y, len(row), width)
		}
		for _, tile := range row {
			if tile == Goal {
				goals++
			}
		}
	}
	if goals != 1 {
		return nil, fmt.Errorf("maze: must have exactly one goal tile, found %d", goals)
	}
	if startX < 0 || startX >= width || startY < 0 || startY >= height {
		return nil, fmt.Errorf("maze: start (%d,%d) out of bounds for %dx%d grid", startX, startY, width, height)
	}
	if grid[startY][startX] != Empty {
		return nil, fmt.Errorf("maze: start tile (%d,%d) must be empty, got %s", startX, startY, grid[startY][startX])
	}
	return &Maze{Width: width, Height: height, Grid: grid, StartX: startX, StartY: startY}, nil
}

// Classify returns the tile type at (x, y). Coordinates outside
// [0,W)×[0,H) are OutOfBounds.
func (m *Maze) Classify(x, y int) TileType {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return OutOfBounds
	}
	return m.Grid[y][x]
}

// CanEnter reports whether an agent may step onto a tile of this type.
func CanEnter(tile TileType) bool {
	return tile == Empty || tile == Goal
}
