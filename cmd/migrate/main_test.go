package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRequiresDatabaseURL(t *testing.T) {
	assert.EqualError(t, run(" ", nil), "DATABASE_URL is required")
}

func TestIntArg(t *testing.T) {
	n, err := intArg([]string{"down"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = intArg([]string{"down", "3"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = intArg([]string{"force"}, 0)
	assert.Error(t, err)

	_, err = intArg([]string{"force", "x"}, 0)
	assert.Error(t, err)
}
