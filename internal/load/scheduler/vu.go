package scheduler

import (
	"sync/atomic"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop and will not
	// start another iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated client looping over the iteration function.
// VUs are created and retired only by the Scheduler.
type VirtualUser struct {
	// ID is unique within a run and increases in spawn order
	ID int

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64
}

func newVirtualUser(id int) *VirtualUser {
	return &VirtualUser{
		ID:     id,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iteration returns the number of iterations this VU has started.
func (vu *VirtualUser) Iteration() int64 {
	return vu.iteration.Load()
}

// StopRequested reports whether the VU has been asked to stop.
func (vu *VirtualUser) StopRequested() bool {
	select {
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// Done is closed once the VU goroutine has exited.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// RequestStop asks the VU to stop after its current iteration. An in-flight
// request is never interrupted by this call.
func (vu *VirtualUser) RequestStop() {
	vu.toStopping()
}

// toStopping moves the VU to stopping from whatever state it is in and
// closes stopCh exactly once. The CAS is retried because the VU may flip
// between idle and running concurrently.
func (vu *VirtualUser) toStopping() {
	for {
		st := vu.state.Load()
		if VUState(st) == VUStateStopping || VUState(st) == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(st, int32(VUStateStopping)) {
			close(vu.stopCh)
			return
		}
	}
}

// beginIteration moves an idle VU to running. It fails once a stop has been
// requested, which guarantees no iteration starts after the stop is observed.
func (vu *VirtualUser) beginIteration() bool {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return false
	}
	vu.iteration.Add(1)
	return true
}

func (vu *VirtualUser) endIteration() {
	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
}

func (vu *VirtualUser) markStopped() {
	// Exiting without a stop request (context cancelled).
	vu.toStopping()
	vu.state.Store(int32(VUStateStopped))
	close(vu.doneCh)
}
