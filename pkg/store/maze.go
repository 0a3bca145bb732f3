package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mazerunner/harness/pkg/world"
)

const (
	tileEmpty = '.'
	tileWall  = '#'
	tileGoal  = 'G'
)

// encodeTileRows renders a world.Maze grid as one string per row using the
// '.', '#', 'G' alphabet, for storage in Maze.TileRows.
func encodeTileRows(m *world.Maze) []string {
	rows := make([]string, m.Height)
	for y := 0; y < m.Height; y++ {
		var b strings.Builder
		for x := 0; x < m.Width; x++ {
			switch m.Grid[y][x] {
			case world.Wall:
				b.WriteByte(tileWall)
			case world.Goal:
				b.WriteByte(tileGoal)
			default:
				b.WriteByte(tileEmpty)
			}
		}
		rows[y] = b.String()
	}
	return rows
}

// decodeTileRows parses the stored row strings back into a world.Maze.
func decodeTileRows(id int64, width, height int, rows []string, startX, startY int) (*world.Maze, error) {
	grid := make([][]world.TileType, height)
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("maze %d: row %d has length %d, want %d", id, y, len(row), width)
		}
		grid[y] = make([]world.TileType, width)
		for x, ch := range row {
			switch ch {
			case tileWall:
				grid[y][x] = world.Wall
			case tileGoal:
				grid[y][x] = world.Goal
			default:
				grid[y][x] = world.Empty
			}
		}
	}
	m, err := world.NewMaze(width, height, grid, startX, startY)
	if err != nil {
		return nil, err
	}
	m.ID = id
	return m, nil
}

// CreateMaze persists a world.Maze under the given name.
func (c *Client) CreateMaze(ctx context.Context, name string, m *world.Maze) (int64, error) {
	row := &Maze{
		Name:     name,
		Width:    m.Width,
		Height:   m.Height,
		TileRows: encodeTileRows(m),
		StartX:   m.StartX,
		StartY:   m.StartY,
	}
	_, err := c.NewInsert().Model(row).Returning("id").Exec(ctx, &row.ID)
	if err != nil {
		return 0, fmt.Errorf("creating maze %q: %w", name, err)
	}
	return row.ID, nil
}

// LoadMaze fetches a maze by id and reconstructs the world.Maze it
// describes.
func (c *Client) LoadMaze(ctx context.Context, id int64) (*world.Maze, error) {
	row := new(Maze)
	if err := c.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading maze %d: %w", id, err)
	}
	return decodeTileRows(row.ID, row.Width, row.Height, row.TileRows, row.StartX, row.StartY)
}
