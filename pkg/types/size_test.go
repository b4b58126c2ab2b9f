// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"1 KB", 1024},
		{"1.5 MB", 1572864},
		{"20GB", 20 << 30},
		{"20 GiB", 20 << 30},
		{"1,024 KB", 1 << 20},
		{"2 tb", 2 << 40},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "big", "12 parsecs", "GB", "99999 PB"} {
		_, err := ParseSize(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseSizeRejectsOverflow(t *testing.T) {
	_, err := ParseSize("9000 PB")
	assert.ErrorContains(t, err, "out of range")

	got, err := ParseSize("8000 PB")
	require.NoError(t, err)
	assert.Positive(t, got)
}

func TestByteSizeUnmarshalYAML(t *testing.T) {
	var c Constraints
	require.NoError(t, yaml.Unmarshal([]byte("min_size: 700MB\nmax_size: 1048576\n"), &c))
	assert.Equal(t, ByteSize(700<<20), c.MinSize)
	assert.Equal(t, ByteSize(1<<20), c.MaxSize)
	assert.Equal(t, "1.0 MiB", c.MaxSize.String())
}

func TestTaskStateTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.Terminal())
	assert.True(t, TaskFailed.Terminal())
	for _, s := range []TaskState{TaskQueued, TaskSubmitting, TaskActive, TaskPaused, TaskRetrying} {
		assert.False(t, s.Terminal(), string(s))
	}
}
