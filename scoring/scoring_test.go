package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_WithoutBet(t *testing.T) {
	cases := []struct {
		name   string
		guess  int
		actual int
		want   int
	}{
		{"exact", 1985, 1985, 10},
		{"one year early", 1984, 1985, 5},
		{"three years late", 1988, 1985, 5},
		{"four years", 1981, 1985, 2},
		{"five years", 1990, 1985, 2},
		{"six years", 1991, 1985, 0},
		{"far off", 1950, 1985, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.guess, tc.actual, false))
		})
	}
}

func TestScore_WithBet(t *testing.T) {
	assert.Equal(t, 20, Score(1985, 1985, true))

	for _, guess := range []int{1984, 1988, 1990, 2020} {
		assert.Equal(t, 0, Score(guess, 1985, true), "guess %d", guess)
	}
}

func TestScore_Deterministic(t *testing.T) {
	first := Score(1979, 1985, true)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Score(1979, 1985, true))
	}
}

func TestRules_CustomTable(t *testing.T) {
	r := DefaultRules
	r.WrongWithBet = -r.ExactWithBet

	assert.Equal(t, -20, r.Score(1990, 1985, true))
	assert.Equal(t, 20, r.Score(1985, 1985, true))
	assert.Equal(t, 5, r.Score(1982, 1985, false))
}
