package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvisoryLockKey_Deterministic(t *testing.T) {
	a := advisoryLockKey("experiment-1")
	b := advisoryLockKey("experiment-1")
	assert.Equal(t, a, b)
}

func TestAdvisoryLockKey_DistinctExperimentsDiffer(t *testing.T) {
	a := advisoryLockKey("experiment-1")
	b := advisoryLockKey("experiment-2")
	assert.NotEqual(t, a, b)
}
