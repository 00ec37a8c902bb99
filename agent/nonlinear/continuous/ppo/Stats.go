package ppo

import "gonum.org/v1/gonum/stat"

// Stats accumulates training diagnostics over one reporting window.
// Episodic rewards are committed as episodes complete, and update
// diagnostics are committed once per gradient step. A Stats is reset
// at each report boundary and reused.
type Stats struct {
	episodeReturns []float64
	currentReturn  float64

	policyLosses []float64
	valueLosses  []float64
	totalLosses  []float64
	kls          []float64
}

// NewStats returns a new Stats accumulator
func NewStats() *Stats {
	return &Stats{}
}

// AddReward adds the reward of a single timestep to the return of the
// episode currently being accumulated.
func (s *Stats) AddReward(reward float64) {
	s.currentReturn += reward
}

// EndEpisode commits the return of the episode currently being
// accumulated and begins accumulating a new episode.
func (s *Stats) EndEpisode() {
	s.episodeReturns = append(s.episodeReturns, s.currentReturn)
	s.currentReturn = 0.0
}

// AddUpdate commits the diagnostics of a single gradient step.
func (s *Stats) AddUpdate(policyLoss, valueLoss, totalLoss, kl float64) {
	s.policyLosses = append(s.policyLosses, policyLoss)
	s.valueLosses = append(s.valueLosses, valueLoss)
	s.totalLosses = append(s.totalLosses, totalLoss)
	s.kls = append(s.kls, kl)
}

// Episodes returns the number of episodes completed in the current
// reporting window
func (s *Stats) Episodes() int {
	return len(s.episodeReturns)
}

// MeanEpisodicReward returns the mean return of the episodes completed
// in the current reporting window. The second return value is false
// when no episodes completed in the window, in which case the mean is
// undefined and reported as 0.
func (s *Stats) MeanEpisodicReward() (float64, bool) {
	if len(s.episodeReturns) == 0 {
		return 0.0, false
	}
	return stat.Mean(s.episodeReturns, nil), true
}

// MeanPolicyLoss returns the mean policy loss of the gradient steps
// committed in the current reporting window
func (s *Stats) MeanPolicyLoss() float64 {
	return meanOrZero(s.policyLosses)
}

// MeanValueLoss returns the mean value function loss of the gradient
// steps committed in the current reporting window
func (s *Stats) MeanValueLoss() float64 {
	return meanOrZero(s.valueLosses)
}

// MeanTotalLoss returns the mean total loss of the gradient steps
// committed in the current reporting window
func (s *Stats) MeanTotalLoss() float64 {
	return meanOrZero(s.totalLosses)
}

// MeanKL returns the mean approximate KL divergence between the old
// and updated policies over the gradient steps committed in the
// current reporting window
func (s *Stats) MeanKL() float64 {
	return meanOrZero(s.kls)
}

// Reset resets the accumulator at a report boundary. The return of
// any episode still in progress is retained so that the episode is
// committed to the next window when it completes.
func (s *Stats) Reset() {
	s.episodeReturns = s.episodeReturns[:0]
	s.policyLosses = s.policyLosses[:0]
	s.valueLosses = s.valueLosses[:0]
	s.totalLosses = s.totalLosses[:0]
	s.kls = s.kls[:0]
}

func meanOrZero(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}
