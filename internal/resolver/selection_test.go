package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

func TestParseSelection(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		max      int
		want     []int
		warnings int
	}{
		{"mixed", "1,3-5,7", 10, []int{1, 3, 4, 5, 7}, 0},
		{"dedup and sort", "5, 2-4, 3, 2", 10, []int{2, 3, 4, 5}, 0},
		{"out of bounds ignored", "1,12,8-11", 10, []int{1}, 2},
		{"reversed range ignored", "5-3", 10, nil, 1},
		{"garbage number ignored", "abc,2", 10, []int{2}, 1},
		{"bad range format", "1-2-3,0", 10, []int{0}, 1},
		{"empty", " , ", 10, nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, warnings, err := ParseSelection(tc.input, tc.max)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Len(t, warnings, tc.warnings)
		})
	}
}

func TestParseSelectionRejectsNonNumericRange(t *testing.T) {
	_, _, err := ParseSelection("a-3", 10)
	require.Error(t, err)
	assert.True(t, apperr.IsParsing(err))
}

func TestAll(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, All(3))
	assert.Empty(t, All(0))
}
