package game

// Phase is the round state of a game.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// 允许的状态转换: idle -> active (StartRound), active -> idle (EndRound)
var transitions = map[Phase]map[Phase]bool{
	PhaseIdle:   {PhaseActive: true},
	PhaseActive: {PhaseIdle: true, PhaseActive: true},
}

func canTransition(from, to Phase) bool {
	return transitions[from][to]
}
