package test

import (
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/require"
)

func TestNewTestingLogger(t *testing.T) {
	logger := NewTestingLogger(t)
	require.NoError(t, level.Info(logger).Log("msg", "hello", "n", 1))
}
