// Package sched assigns batch jobs to compute devices. Assignment is a pure
// modulo rule, so a batch balances deterministically across devices without
// a central lock; serialization per device follows from the assignment, not
// from locking.
package sched

import "github.com/himanishpuri/EchoAlign/pkg/echoalign/model"

// DeviceContext is the explicit device handle passed into extraction calls.
// There is no hidden module-level device state; a job acquires a context,
// uses it, and releases it.
type DeviceContext struct {
	Device int
	// Accelerated is false on the CPU fallback path.
	Accelerated bool
}

// Prober checks that a device can be used. The device-owning collaborator
// supplies the real implementation; the zero scheduler assumes devices are
// healthy.
type Prober interface {
	Probe(device int) error
}

// Scheduler implements round-robin device assignment. It holds no per-device
// state beyond the assignment rule.
type Scheduler struct {
	deviceCount int
	prober      Prober
}

// New returns a Scheduler over deviceCount devices. A count below 1 means a
// single CPU-only slot.
func New(deviceCount int, prober Prober) *Scheduler {
	if deviceCount < 1 {
		deviceCount = 1
	}
	return &Scheduler{deviceCount: deviceCount, prober: prober}
}

// DeviceCount returns the number of schedulable devices.
func (s *Scheduler) DeviceCount() int { return s.deviceCount }

// Assign maps a stable job identifier to a device index. For identifiers
// 0..(k*N-1) every device 0..N-1 is used exactly k times.
func (s *Scheduler) Assign(jobID uint64) int {
	return int(jobID % uint64(s.deviceCount))
}

// Acquire assigns and probes a device. On probe failure it returns a CPU
// fallback context together with a DeviceUnavailableError so the caller can
// record the degradation; the job itself must not fail.
func (s *Scheduler) Acquire(jobID uint64) (*DeviceContext, error) {
	device := s.Assign(jobID)
	if s.prober != nil {
		if err := s.prober.Probe(device); err != nil {
			return &DeviceContext{Device: -1, Accelerated: false},
				&model.DeviceUnavailableError{Device: device, Err: err}
		}
	}
	return &DeviceContext{Device: device, Accelerated: true}, nil
}

// Release returns the device to the owning collaborator. The scheduler keeps
// no allocation state, so this is the hook point, not a bookkeeping call.
func (s *Scheduler) Release(dc *DeviceContext) {}
