package tuner

// Baselines tracks the best Score ever observed and a rolling average over
// the most recent rounds.
type Baselines struct {
	window  int
	best    Score
	history []Score
	avg     Score
}

// NewBaselines keeps at most window scores in the rolling history.
func NewBaselines(window int) *Baselines {
	return &Baselines{
		window:  max(1, window),
		history: make([]Score, 0, max(1, window)),
	}
}

// UpdateMaxScore merges s into the best-ever snapshot. Every field is
// non-decreasing across calls.
func (b *Baselines) UpdateMaxScore(s Score) {
	b.best = b.best.Max(s)
}

// Push appends s to the history, evicting the oldest score once the window
// is full.
func (b *Baselines) Push(s Score) {
	if len(b.history) >= b.window {
		copy(b.history, b.history[1:])
		b.history = b.history[:len(b.history)-1]
	}
	b.history = append(b.history, s)
}

// CalculateAvgScore recomputes the rolling average from the retained
// history and returns it.
func (b *Baselines) CalculateAvgScore() Score {
	var sum Score
	for _, s := range b.history {
		sum = sum.Add(s)
	}
	b.avg = sum.Div(len(b.history))
	return b.avg
}

// Best returns the best-ever snapshot.
func (b *Baselines) Best() Score { return b.best }

// Avg returns the rolling average computed by the last CalculateAvgScore.
func (b *Baselines) Avg() Score { return b.avg }

// Len returns the number of retained scores.
func (b *Baselines) Len() int { return len(b.history) }
