package store

// Position is the derived (x, y) location of an experiment, computed from
// its action log rather than stored directly. Encoded once here so no
// caller inlines the derivation — a duplicated ad-hoc query that treats a
// null to_x/to_y as "no position" instead of "agent did not move" is an
// easy way to teleport an agent back to start.
type Position struct {
	X int
	Y int
}

// currentPositionFrom applies the rule to an experiment's start position
// and, if any, its most-recent-by-step-number action.
func currentPositionFrom(startX, startY int, last *AgentAction) Position {
	if last == nil {
		return Position{X: startX, Y: startY}
	}
	if last.ToX != nil && last.ToY != nil {
		return Position{X: *last.ToX, Y: *last.ToY}
	}
	return Position{X: *last.FromX, Y: *last.FromY}
}
