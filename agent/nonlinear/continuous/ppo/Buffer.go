package ppo

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Buffer implements a fixed-capacity rollout buffer of transitions
// for on-policy learning. Each transition stores the observation,
// action, reward, state value estimate, and log probability of the
// action under the policy that collected it.
//
// After a trajectory ends, or the buffer fills mid-episode,
// CompleteTrajectory computes the generalized advantage estimate and
// λ-return of each transition in the trajectory. Once every stored
// transition has had its advantage computed, the buffer can be
// partitioned into randomly ordered minibatches for learning. The
// buffer must be cleared before the next collection window begins.
type Buffer struct {
	obsSize      int
	actionSize   int
	maxSize      int
	currentPos   int
	pathStartIdx int
	lambda       float64
	gamma        float64

	obsBuffer     []float64
	actBuffer     []float64
	advBuffer     []float64
	rewBuffer     []float64
	retBuffer     []float64
	valBuffer     []float64
	logProbBuffer []float64

	rng *rand.Rand
}

// NewBuffer returns a new rollout buffer holding at most size
// transitions of obsDim-dimensional observations and
// actDim-dimensional actions. The lambda and gamma parameters are the
// GAE decay rate and the discount factor used when computing
// advantages. The seed parameter seeds the random number generator
// used to shuffle minibatches.
func NewBuffer(obsDim, actDim, size int, lambda, gamma float64,
	seed uint64) *Buffer {
	obsBuffer := make([]float64, size*obsDim)
	actBuffer := make([]float64, size*actDim)
	advBuffer := make([]float64, size)
	rewBuffer := make([]float64, size)
	retBuffer := make([]float64, size)
	valBuffer := make([]float64, size)
	logProbBuffer := make([]float64, size)

	return &Buffer{
		obsSize:       obsDim,
		actionSize:    actDim,
		maxSize:       size,
		currentPos:    0,
		pathStartIdx:  0,
		lambda:        lambda,
		gamma:         gamma,
		obsBuffer:     obsBuffer,
		actBuffer:     actBuffer,
		advBuffer:     advBuffer,
		rewBuffer:     rewBuffer,
		retBuffer:     retBuffer,
		valBuffer:     valBuffer,
		logProbBuffer: logProbBuffer,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Store stores a single timestep observation, action, reward, state
// value, and action log probability in the buffer. Store returns a
// BufferOverflow error if called when the buffer is at capacity.
func (b *Buffer) Store(obs, act []float64, rew, val,
	logProb float64) error {
	if b.currentPos >= b.maxSize {
		return &BufferError{
			Op:  "store",
			Err: errBufferOverflow,
		}
	}
	if len(obs) != b.obsSize {
		return fmt.Errorf("store: illegal obs length \n\twant(%v)"+
			"\n\thave(%v)", b.obsSize, len(obs))
	}
	if len(act) != b.actionSize {
		return fmt.Errorf("store: illegal act length \n\twant(%v)"+
			"\n\thave(%v)", b.actionSize, len(act))
	}

	start := b.currentPos * b.obsSize
	stop := start + b.obsSize
	copy(b.obsBuffer[start:stop], obs)

	start = b.currentPos * b.actionSize
	stop = start + b.actionSize
	copy(b.actBuffer[start:stop], act)

	b.rewBuffer[b.currentPos] = rew
	b.valBuffer[b.currentPos] = val
	b.logProbBuffer[b.currentPos] = logProb
	b.currentPos++
	return nil
}

// CompleteTrajectory computes the advantage and return of every
// transition stored since the last completed trajectory, by backward
// recursion over the temporal difference errors of the trajectory:
//
//	δ[t] = r[t] + γ * V(S[t+1]) - V(S[t])
//	A[t] = δ[t] + γλ * A[t+1]
//
// The return of each transition is its advantage plus its state
// value.
//
// The value of the state following the final stored transition is
// bootstrapped with lastVal only when the trajectory was cut off
// before reaching a terminal state, either by an environment timeout
// or by the buffer filling mid-episode. When terminal is true the
// final next-state value is 0.
//
// CompleteTrajectory on an empty buffer is a no-op. Completing the
// same trajectory twice, with no transitions stored in between,
// returns an InvalidState error.
func (b *Buffer) CompleteTrajectory(terminal bool, lastVal float64) error {
	if b.currentPos == 0 && b.pathStartIdx == 0 {
		return nil
	}
	if b.pathStartIdx == b.currentPos {
		return &BufferError{
			Op:  "completeTrajectory",
			Err: errInvalidState,
		}
	}

	nextValue := lastVal
	if terminal {
		nextValue = 0.0
	}

	nextAdvantage := 0.0
	for t := b.currentPos - 1; t >= b.pathStartIdx; t-- {
		delta := b.rewBuffer[t] + b.gamma*nextValue - b.valBuffer[t]
		b.advBuffer[t] = delta + b.gamma*b.lambda*nextAdvantage

		nextValue = b.valBuffer[t]
		nextAdvantage = b.advBuffer[t]

		b.retBuffer[t] = b.advBuffer[t] + b.valBuffer[t]
	}

	b.pathStartIdx = b.currentPos
	return nil
}

// Full returns whether the buffer has been filled to capacity since
// the last Clear
func (b *Buffer) Full() bool {
	return b.currentPos == b.maxSize
}

// Clear resets the buffer to empty so that the next collection window
// can begin. The allocated storage is retained for reuse.
func (b *Buffer) Clear() {
	b.currentPos = 0
	b.pathStartIdx = 0
}

// MiniBatch holds the fields of a minibatch of transitions gathered
// from a Buffer. The observations and actions of the minibatch are
// stored in row major order. Advantages are raw GAE estimates;
// normalization is left to the learner.
type MiniBatch struct {
	Obs        []float64
	Actions    []float64
	LogProbs   []float64
	Advantages []float64
	Returns    []float64
	Values     []float64
	Size       int
}

// MiniBatches partitions the stored transitions into minibatches of
// at most batchSize transitions each and returns an iterator over
// them. The iterator visits every stored transition exactly once, in
// an order that is randomized on each call to MiniBatches. The
// returned iterator is finite and cannot be restarted; a fresh call
// reshuffles.
//
// Every stored transition must belong to a completed trajectory
// before minibatches can be gathered. If any transition has not had
// its advantage computed, MiniBatches returns a NotReady error.
func (b *Buffer) MiniBatches(batchSize int) (*MiniBatchIterator, error) {
	if b.currentPos == 0 || b.pathStartIdx != b.currentPos {
		return nil, &BufferError{
			Op:  "miniBatches",
			Err: errNotReady,
		}
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("miniBatches: batch size must be positive "+
			"\n\thave(%v)", batchSize)
	}

	indices := b.rng.Perm(b.currentPos)
	return &MiniBatchIterator{
		buffer:    b,
		indices:   indices,
		batchSize: batchSize,
	}, nil
}

// MiniBatchIterator iterates over a random partition of a Buffer's
// transitions. The usual iteration idiom applies:
//
//	it, err := buffer.MiniBatches(batchSize)
//	for it.Next() {
//		batch := it.MiniBatch()
//		...
//	}
type MiniBatchIterator struct {
	buffer    *Buffer
	indices   []int
	batchSize int
	pos       int
	batch     MiniBatch
}

// Next advances the iterator to the next minibatch, returning false
// when no minibatches remain.
func (it *MiniBatchIterator) Next() bool {
	if it.pos >= len(it.indices) {
		return false
	}

	stop := it.pos + it.batchSize
	if stop > len(it.indices) {
		stop = len(it.indices)
	}
	it.batch = it.buffer.gather(it.indices[it.pos:stop])
	it.pos = stop
	return true
}

// MiniBatch returns the minibatch that the iterator was advanced to
// by the last call to Next.
func (it *MiniBatchIterator) MiniBatch() MiniBatch {
	return it.batch
}

// gather copies the transitions at the argument buffer indices into a
// new MiniBatch.
func (b *Buffer) gather(indices []int) MiniBatch {
	batch := MiniBatch{
		Obs:        make([]float64, len(indices)*b.obsSize),
		Actions:    make([]float64, len(indices)*b.actionSize),
		LogProbs:   make([]float64, len(indices)),
		Advantages: make([]float64, len(indices)),
		Returns:    make([]float64, len(indices)),
		Values:     make([]float64, len(indices)),
		Size:       len(indices),
	}

	for i, index := range indices {
		copy(batch.Obs[i*b.obsSize:(i+1)*b.obsSize],
			b.obsBuffer[index*b.obsSize:(index+1)*b.obsSize])
		copy(batch.Actions[i*b.actionSize:(i+1)*b.actionSize],
			b.actBuffer[index*b.actionSize:(index+1)*b.actionSize])

		batch.LogProbs[i] = b.logProbBuffer[index]
		batch.Advantages[i] = b.advBuffer[index]
		batch.Returns[i] = b.retBuffer[index]
		batch.Values[i] = b.valBuffer[index]
	}

	return batch
}
