package redisx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesTimeouts(t *testing.T) {
	opts := New("localhost:6379").Options()
	require.Equal(t, 2*time.Second, opts.ReadTimeout)
	require.Equal(t, 2*time.Second, opts.WriteTimeout)
}
