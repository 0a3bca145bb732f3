package world

// Position is an (x, y) coordinate pair, used as a map key for Vision
// results.
type Position struct {
	X, Y int
}

// direction is a cardinal unit offset.
type direction struct{ dx, dy int }

var cardinals = [4]direction{
	{0, -1}, // north
	{0, 1},  // south
	{1, 0},  // east
	{-1, 0}, // west
}

// Vision returns every tile visible from (x, y) within range R under
// cardinal line-of-sight: for each of the four cardinal directions, tiles
// are added at increasing distance until a WALL or GOAL is encountered
// (which is itself added, then the ray stops) or the grid boundary is
// reached (OUT_OF_BOUNDS tiles are never added). Diagonals are never
// included. The agent's own tile is always included.
//
// Vision is a pure function of (maze grid, x, y, R): same inputs always
// produce the same map.
func Vision(m *Maze, x, y, r int) map[Position]TileType {
	seen := make(map[Position]TileType, 1+4*r)
	seen[Position{x, y}] = m.Classify(x, y)

	for _, d := range cardinals {
		for dist := 1; dist <= r; dist++ {
			tx, ty := x+d.dx*dist, y+d.dy*dist
			tile := m.Classify(tx, ty)
			if tile == OutOfBounds {
				break
			}
			seen[Position{tx, ty}] = tile
			if tile == Wall || tile == Goal {
				break
			}
		}
	}
	return seen
}
