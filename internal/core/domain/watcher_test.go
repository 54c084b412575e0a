package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

func TestWatcherCursors(t *testing.T) {
	watcher := domain.NewWatcher("default", "vpub...")
	require.NotNil(t, watcher.Cursors)
	assert.Equal(t, uint32(0), watcher.NextIndex(domain.IfaceRGB20))

	// Cursors advance per interface, independently.
	assert.Equal(t, uint32(1), watcher.AdvanceCursor(domain.IfaceRGB20))
	assert.Equal(t, uint32(2), watcher.AdvanceCursor(domain.IfaceRGB20))
	assert.Equal(t, uint32(0), watcher.NextIndex(domain.IfaceRGB21))
	assert.Equal(t, uint32(1), watcher.AdvanceCursor(domain.IfaceRGB21))
	assert.Equal(t, uint32(2), watcher.NextIndex(domain.IfaceRGB20))
}
