package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)

	created, err := GetTimeFromID(a)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, 5*time.Second)
}

func TestGenerateTimestampPrefix(t *testing.T) {
	prefix := GenerateTimestampPrefix()

	assert.Len(t, prefix, 9)
	assert.Equal(t, byte('_'), prefix[8])

	created, err := GetTimeFromID(prefix)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, 5*time.Second)
}

func TestGetTimeFromIDInvalid(t *testing.T) {
	_, err := GetTimeFromID("short")
	assert.Error(t, err)

	_, err = GetTimeFromID("zzzzzzzz_rest")
	assert.Error(t, err)
}

func TestIsOlderThan(t *testing.T) {
	fresh := GenerateID()
	assert.False(t, IsOlderThan(fresh, time.Minute))

	// An ID stamped an hour ago.
	old := "00000001_file.png"
	assert.True(t, IsOlderThan(old, time.Hour))

	assert.False(t, IsOlderThan("bad", time.Minute))
}
