package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Health_ReportsHealthyOnLiveConnection(t *testing.T) {
	c := newTestClient(t)

	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
}

func TestStore_Health_ReportsUnhealthyAfterClose(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.Close())

	status, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "unhealthy", status.Status)
}
