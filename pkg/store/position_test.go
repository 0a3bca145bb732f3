package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentPositionFrom_NoActions(t *testing.T) {
	assert.Equal(t, Position{X: 2, Y: 3}, currentPositionFrom(2, 3, nil))
}

func TestCurrentPositionFrom_MovementActionUsesTo(t *testing.T) {
	to := &AgentAction{FromX: mustIntPtr(0), FromY: mustIntPtr(0), ToX: mustIntPtr(1), ToY: mustIntPtr(0)}
	assert.Equal(t, Position{X: 1, Y: 0}, currentPositionFrom(0, 0, to))
}

func TestCurrentPositionFrom_NonMovementUsesFrom(t *testing.T) {
	recall := &AgentAction{FromX: mustIntPtr(4), FromY: mustIntPtr(5), ToX: nil, ToY: nil}
	assert.Equal(t, Position{X: 4, Y: 5}, currentPositionFrom(9, 9, recall))
}

func TestCurrentPositionFrom_FailedMoveUsesFromNotStart(t *testing.T) {
	failed := &AgentAction{FromX: mustIntPtr(1), FromY: mustIntPtr(1), ToX: nil, ToY: nil}
	assert.Equal(t, Position{X: 1, Y: 1}, currentPositionFrom(0, 0, failed))
}
