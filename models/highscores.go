package models

import (
	"sort"
)

// Record inserts entry into the list for round, keeps that list sorted by
// score per round (best first) and bounded, and promotes entry to the
// all-time best when it is strictly better.
func (h *HighscoreTracker) Record(round int, entry HighscoreEntry) {
	if h.ByRound == nil {
		h.ByRound = make(map[int][]HighscoreEntry)
	}

	list := append(h.ByRound[round], entry)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ScorePerRound > list[j].ScorePerRound
	})
	if len(list) > MaxHighscoresPerRound {
		list = list[:MaxHighscoresPerRound]
	}
	h.ByRound[round] = list

	if h.AllTimeBest == nil || entry.ScorePerRound > h.AllTimeBest.ScorePerRound {
		best := entry
		h.AllTimeBest = &best
	}
}

// Best returns the top entry for round, or nil.
func (h *HighscoreTracker) Best(round int) *HighscoreEntry {
	list := h.ByRound[round]
	if len(list) == 0 {
		return nil
	}
	best := list[0]
	return &best
}
