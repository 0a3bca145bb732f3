// Package tools is the Tool Dispatcher: an in-process MCP server exposing
// the five maze actions (move_north/south/east/west, recall) plus the
// in-memory client wiring an invoker uses to call them. Server and client
// run in the same process connected by an in-memory transport, since this
// repo's tool server has no external process to connect to.
package tools

import (
	"sort"

	"github.com/mazerunner/harness/pkg/world"
)

// Direction identifies one of the four movement tools.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// delta returns the (dx, dy) offset a direction moves by.
func (d Direction) delta() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	case West:
		return -1, 0
	}
	return 0, 0
}

// TileObservation is one (x, y, tile_type) entry in a vision or recall
// payload.
type TileObservation struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	TileType string `json:"tile_type"`
}

// MoveResult is the structured payload a move tool call returns after
// releasing the lock: {success, message, position, visible}. Goal
// additionally reports whether the moved-into tile is the goal tile, so
// the agent invoker — which only ever sees the dispatcher through this
// payload, never the maze itself — can implement its post-move goal
// check.
type MoveResult struct {
	Success  bool              `json:"success"`
	Goal     bool              `json:"goal"`
	Message  string            `json:"message"`
	Position Position          `json:"position"`
	Visible  []TileObservation `json:"visible,omitempty"`
}

// Position mirrors store.Position in JSON-tagged form for tool payloads.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RecallResult is the structured payload a recall tool call returns.
type RecallResult struct {
	Success              bool              `json:"success"`
	Message              string            `json:"message"`
	Position             Position          `json:"position"`
	Visible              []TileObservation `json:"visible,omitempty"`
	MovesSinceLastRecall int               `json:"moves_since_last_recall,omitempty"`
	MovesRequired        int               `json:"moves_required,omitempty"`
}

func visionToObservations(seen map[world.Position]world.TileType) []TileObservation {
	out := make([]TileObservation, 0, len(seen))
	for pos, tile := range seen {
		out = append(out, TileObservation{X: pos.X, Y: pos.Y, TileType: tile.String()})
	}
	sortObservations(out)
	return out
}

// sortObservations orders by (y, x) so identical vision/recall payloads
// serialize identically across calls — map iteration order is otherwise
// unspecified.
func sortObservations(obs []TileObservation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].Y != obs[j].Y {
			return obs[i].Y < obs[j].Y
		}
		return obs[i].X < obs[j].X
	})
}
