package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitJoin_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		s    string
		k    int
	}{
		{"even split", strings.Repeat("ab", 50), 10},
		{"uneven tail", strings.Repeat("xyz", 33), 7},
		{"chunk larger than input", "short", 1000},
		{"single byte chunks", "abcdef", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(tc.s, tc.k)
			require.Equal(t, tc.s, Join(chunks))
			for i, c := range chunks {
				require.Equal(t, i, c.Index)
				require.LessOrEqual(t, len(c.Data), tc.k)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	require.Nil(t, Split("", 10))
	require.Nil(t, Split("data", 0))
}

func TestSplit_ChunkCount(t *testing.T) {
	chunks := Split(strings.Repeat("a", 95), 10)
	require.Len(t, chunks, 10)
	require.Len(t, chunks[9].Data, 5)
}
