package ppo

import (
	"math"
	"testing"
)

const tolerance float64 = 1e-10

// fillBuffer stores n transitions in b with deterministic contents.
// The observation of transition i is [i], its action [i], its reward
// i, its value i/2, and its log probability -i.
func fillBuffer(t *testing.T, b *Buffer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f := float64(i)
		err := b.Store([]float64{f}, []float64{f}, f, f/2, -f)
		if err != nil {
			t.Fatalf("could not store transition %v: %v", i, err)
		}
	}
}

// TestBufferGAE checks the backward recursion against a hand-computed
// 3-step trajectory with rewards [1, 1, 1], values [0.5, 0.5, 0.5],
// γ = 0.99, λ = 0.95, and a terminal final state.
func TestBufferGAE(t *testing.T) {
	b := NewBuffer(2, 1, 3, 0.95, 0.99, 14)

	for i := 0; i < 3; i++ {
		err := b.Store([]float64{0, 1}, []float64{2}, 1.0, 0.5, -0.5)
		if err != nil {
			t.Fatalf("could not store transition %v: %v", i, err)
		}
	}
	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Fatalf("could not complete trajectory: %v", err)
	}

	// δ[2] = 1 + 0.99*0 - 0.5            = 0.5
	// δ[1] = δ[0] = 1 + 0.99*0.5 - 0.5   = 0.995
	// A[2] = 0.5
	// A[1] = 0.995 + 0.99*0.95*0.5       = 1.46525
	// A[0] = 0.995 + 0.99*0.95*1.46525   = 2.373067625
	expectedAdv := []float64{2.373067625, 1.46525, 0.5}
	expectedRet := []float64{2.873067625, 1.96525, 1.0}

	for i := range expectedAdv {
		if math.Abs(b.advBuffer[i]-expectedAdv[i]) > tolerance {
			t.Errorf("incorrect advantage at index %v \n\twant(%v)"+
				"\n\thave(%v)", i, expectedAdv[i], b.advBuffer[i])
		}
		if math.Abs(b.retBuffer[i]-expectedRet[i]) > tolerance {
			t.Errorf("incorrect return at index %v \n\twant(%v)"+
				"\n\thave(%v)", i, expectedRet[i], b.retBuffer[i])
		}
	}
}

// TestBufferReturnIdentity checks that the return of every processed
// transition equals its advantage plus its value, including when the
// trajectory bootstraps off a nonzero final state value.
func TestBufferReturnIdentity(t *testing.T) {
	size := 16
	b := NewBuffer(1, 1, size, 0.95, 0.99, 14)
	fillBuffer(t, b, size/2)

	// Episode ends mid-buffer in a terminal state
	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Fatalf("could not complete trajectory: %v", err)
	}

	// Second trajectory cut off by the full buffer, bootstrapping
	fillBuffer(t, b, size/2)
	if err := b.CompleteTrajectory(false, 3.7); err != nil {
		t.Fatalf("could not complete trajectory: %v", err)
	}

	iter, err := b.MiniBatches(4)
	if err != nil {
		t.Fatalf("could not gather minibatches: %v", err)
	}
	for iter.Next() {
		batch := iter.MiniBatch()
		for i := 0; i < batch.Size; i++ {
			identity := batch.Advantages[i] + batch.Values[i]
			if math.Abs(batch.Returns[i]-identity) > tolerance {
				t.Errorf("return != advantage + value \n\twant(%v)"+
					"\n\thave(%v)", identity, batch.Returns[i])
			}
		}
	}
}

// TestBufferOverflow checks that storing more transitions than the
// buffer's capacity fails with a BufferOverflow error.
func TestBufferOverflow(t *testing.T) {
	size := 4
	b := NewBuffer(1, 1, size, 0.95, 0.99, 14)
	fillBuffer(t, b, size)

	err := b.Store([]float64{0}, []float64{0}, 0, 0, 0)
	if err == nil {
		t.Fatal("expected error when storing beyond capacity")
	}
	if !IsBufferOverflow(err) {
		t.Errorf("expected buffer overflow error \n\thave(%v)", err)
	}
}

// TestBufferCompleteTwice checks that completing the same trajectory
// twice, with no transitions stored in between, fails with an
// InvalidState error.
func TestBufferCompleteTwice(t *testing.T) {
	b := NewBuffer(1, 1, 8, 0.95, 0.99, 14)
	fillBuffer(t, b, 3)

	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Fatalf("could not complete trajectory: %v", err)
	}

	err := b.CompleteTrajectory(true, 0.0)
	if err == nil {
		t.Fatal("expected error when completing a trajectory twice")
	}
	if !IsInvalidState(err) {
		t.Errorf("expected invalid state error \n\thave(%v)", err)
	}
}

// TestBufferEmptyCompleteIsNoOp checks that completing a trajectory
// on an empty buffer does nothing and does not fail.
func TestBufferEmptyCompleteIsNoOp(t *testing.T) {
	b := NewBuffer(1, 1, 8, 0.95, 0.99, 14)
	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Errorf("completing an empty buffer should be a no-op "+
			"\n\thave(%v)", err)
	}

	b.Clear()
	if err := b.CompleteTrajectory(false, 1.0); err != nil {
		t.Errorf("completing a cleared buffer should be a no-op "+
			"\n\thave(%v)", err)
	}
}

// TestBufferNotReady checks that minibatches cannot be gathered while
// any stored transition belongs to an uncompleted trajectory.
func TestBufferNotReady(t *testing.T) {
	b := NewBuffer(1, 1, 8, 0.95, 0.99, 14)

	// Empty buffers have nothing to sample
	if _, err := b.MiniBatches(4); !IsNotReady(err) {
		t.Errorf("expected not ready error on empty buffer \n\thave(%v)",
			err)
	}

	fillBuffer(t, b, 6)
	if _, err := b.MiniBatches(4); !IsNotReady(err) {
		t.Errorf("expected not ready error before completion \n\thave(%v)",
			err)
	}

	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Fatalf("could not complete trajectory: %v", err)
	}
	if _, err := b.MiniBatches(4); err != nil {
		t.Errorf("minibatches should be available after completion "+
			"\n\thave(%v)", err)
	}
}

// TestBufferMiniBatchPartition checks that one pass of minibatches
// visits every stored transition exactly once in groups of at most
// the batch size, for a number of shuffling seeds.
func TestBufferMiniBatchPartition(t *testing.T) {
	size, batchSize := 12, 5

	for seed := uint64(0); seed < 10; seed++ {
		b := NewBuffer(1, 1, size, 0.95, 0.99, seed)
		fillBuffer(t, b, size)
		if err := b.CompleteTrajectory(true, 0.0); err != nil {
			t.Fatalf("could not complete trajectory: %v", err)
		}

		iter, err := b.MiniBatches(batchSize)
		if err != nil {
			t.Fatalf("could not gather minibatches: %v", err)
		}

		// The observation of transition i is [i], identifying the
		// buffer index each minibatch row was gathered from
		seen := make(map[int]int)
		batches := 0
		for iter.Next() {
			batch := iter.MiniBatch()
			batches++
			if batch.Size > batchSize {
				t.Errorf("minibatch too large \n\twant(<=%v)\n\thave(%v)",
					batchSize, batch.Size)
			}
			for i := 0; i < batch.Size; i++ {
				seen[int(batch.Obs[i])]++
			}
		}

		expectedBatches := (size + batchSize - 1) / batchSize
		if batches != expectedBatches {
			t.Errorf("incorrect number of minibatches \n\twant(%v)"+
				"\n\thave(%v)", expectedBatches, batches)
		}
		if len(seen) != size {
			t.Errorf("minibatches did not cover the buffer \n\twant(%v)"+
				"\n\thave(%v)", size, len(seen))
		}
		for index, count := range seen {
			if count != 1 {
				t.Errorf("index %v gathered %v times", index, count)
			}
		}
	}
}

// TestBufferClear checks that a cleared buffer accepts a fresh window
// of transitions starting from index 0.
func TestBufferClear(t *testing.T) {
	size := 4
	b := NewBuffer(1, 1, size, 0.95, 0.99, 14)
	fillBuffer(t, b, size)
	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Fatalf("could not complete trajectory: %v", err)
	}

	b.Clear()
	if b.Full() {
		t.Error("cleared buffer should not be full")
	}

	fillBuffer(t, b, size)
	if !b.Full() {
		t.Error("buffer should be full after refilling")
	}
	if err := b.CompleteTrajectory(true, 0.0); err != nil {
		t.Errorf("could not complete trajectory after clear: %v", err)
	}
}
