package ppo

import "errors"

// BufferError implements errors unique to a rollout buffer.
type BufferError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *BufferError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errBufferOverflow error = errors.New("buffer at maximum capacity")

var errInvalidState = errors.New("no unprocessed transitions to complete")

var errNotReady = errors.New("buffer not yet ready for sampling")

// IsBufferOverflow returns whether or not an error reports that a
// transition was stored in a buffer that had already reached its
// capacity.
func IsBufferOverflow(err error) bool {
	if bufferErr, ok := err.(*BufferError); ok {
		err = bufferErr.Err
	}
	return err == errBufferOverflow
}

// IsInvalidState returns whether or not an error reports that a
// trajectory was completed on a buffer holding no transitions since
// the last completed trajectory.
func IsInvalidState(err error) bool {
	if bufferErr, ok := err.(*BufferError); ok {
		err = bufferErr.Err
	}
	return err == errInvalidState
}

// IsNotReady returns whether or not an error reports that minibatches
// were requested from a buffer before the buffer was filled to
// capacity with completed trajectories.
func IsNotReady(err error) bool {
	if bufferErr, ok := err.(*BufferError); ok {
		err = bufferErr.Err
	}
	return err == errNotReady
}
