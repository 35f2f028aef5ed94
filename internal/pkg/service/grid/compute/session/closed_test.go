package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/compute/session"
)

func TestClosedSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	s := session.NewClosed(clk, "some.task", "node1")

	// Read accessors work
	assert.NotEmpty(t, s.TaskID())
	assert.Equal(t, "some.task", s.TaskType())
	assert.Equal(t, "node1", s.Node())
	assert.Equal(t, "2026-01-02T03:04:05.000Z", s.StartedAt().String())
	require.NotNil(t, s.FinishedAt())
	assert.Equal(t, s.StartedAt(), *s.FinishedAt())
	assert.Empty(t, s.Topology())
	assert.Empty(t, s.Siblings())

	// Each stub has a fresh random task ID
	other := session.NewClosed(clk, "some.task", "node1")
	assert.NotEqual(t, s.TaskID(), other.TaskID())

	// Storage operations fail
	err := s.SetAttribute(ctx, "key", "value")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	assert.Equal(t, `cannot set the attribute "key": session is closed`, err.Error())

	assert.ErrorIs(t, s.SetAttributes(ctx, map[string]string{"key": "value"}), session.ErrSessionClosed)

	_, _, err = s.Attribute(ctx, "key")
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	assert.ErrorIs(t, s.SaveCheckpoint(ctx, session.CheckpointScopeGlobal, "name", nil), session.ErrSessionClosed)

	_, err = s.LoadCheckpoint(ctx, session.CheckpointScopeGlobal, "name")
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	existed, err := s.RemoveCheckpoint(ctx, session.CheckpointScopeGlobal, "name")
	assert.False(t, existed)
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	_, err = s.RefreshSiblings(ctx)
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	// Waiting operations fail immediately, without waiting for the timeout
	startTime := time.Now()
	_, err = s.WaitForAttribute(ctx, "key", time.Minute)
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	assert.Equal(t, "wait interrupted: session is closed", err.Error())
	assert.Less(t, time.Since(startTime), time.Second)
}
