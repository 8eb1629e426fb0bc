// Package scoring turns a year guess into points.
package scoring

// Rules holds the point table and the tier boundaries (in years, inclusive).
type Rules struct {
	ExactYear    int
	Within3Years int
	Within5Years int
	ExactWithBet int
	WrongWithBet int
	CloseRange   int
	FarRange     int
}

// DefaultRules is the canonical table. A wrong guess with a bet scores zero.
var DefaultRules = Rules{
	ExactYear:    10,
	Within3Years: 5,
	Within5Years: 2,
	ExactWithBet: 20,
	WrongWithBet: 0,
	CloseRange:   3,
	FarRange:     5,
}

// Score applies DefaultRules.
func Score(guess, actual int, hasBet bool) int {
	return DefaultRules.Score(guess, actual, hasBet)
}

// Score returns the points for a guess against the correct year.
func (r Rules) Score(guess, actual int, hasBet bool) int {
	diff := guess - actual
	if diff < 0 {
		diff = -diff
	}

	if hasBet {
		if diff == 0 {
			return r.ExactWithBet
		}
		return r.WrongWithBet
	}

	switch {
	case diff == 0:
		return r.ExactYear
	case diff <= r.CloseRange:
		return r.Within3Years
	case diff <= r.FarRange:
		return r.Within5Years
	default:
		return 0
	}
}
