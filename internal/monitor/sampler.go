package monitor

import (
	"context"
	"io"
	"log"
	"time"
)

// ProcSource reads memory and CPU usage for a live process.
// Implementations are per-platform; see proc_linux.go and
// proc_default.go.
type ProcSource interface {
	// Stats returns resident memory in MB and recent CPU usage as a
	// percentage of one core. An error means the process could not be
	// read, usually because it has already exited.
	Stats(pid int) (memMB float64, cpuPercent float64, err error)
}

// NewProcSource returns the platform proc source. Callers outside the
// sampler use it for one-off readings.
func NewProcSource() ProcSource {
	return newProcSource()
}

// Sampler polls a supervised process at a fixed interval and emits
// classified samples. A failed read never propagates an error: the
// sampler emits a zero NORMAL sample and keeps going, so a process
// that dies mid-poll is handled by the supervisor's exit path rather
// than by the monitor.
type Sampler struct {
	thresholds Thresholds
	interval   time.Duration
	source     ProcSource
	logger     *log.Logger
}

// NewSampler builds a sampler backed by the platform proc source.
func NewSampler(thresholds Thresholds, interval time.Duration, logger *log.Logger) *Sampler {
	return NewSamplerWithSource(thresholds, interval, logger, newProcSource())
}

// NewSamplerWithSource builds a sampler with an explicit source.
func NewSamplerWithSource(thresholds Thresholds, interval time.Duration, logger *log.Logger, source ProcSource) *Sampler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sampler{
		thresholds: thresholds,
		interval:   interval,
		source:     source,
		logger:     logger,
	}
}

// Interval returns the polling interval.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Sample takes one observation of the process. Unreadable processes
// yield a zero NORMAL sample.
func (s *Sampler) Sample(unitID string, pid int) Sample {
	sample := Sample{
		UnitID:    unitID,
		PID:       pid,
		Timestamp: time.Now().UTC(),
		Severity:  SeverityNormal,
	}
	memMB, cpuPercent, err := s.source.Stats(pid)
	if err != nil {
		return sample
	}
	sample.CurrentMB = memMB
	sample.CPUPercent = cpuPercent
	sample.Severity = s.thresholds.Classify(memMB)
	return sample
}

// Run polls the process until the context is canceled, sending each
// sample on ch. The send is non-blocking: if the receiver is behind,
// the sample is dropped rather than stalling the poll loop. Run owns
// neither the channel nor the process; it closes nothing on return.
func (s *Sampler) Run(ctx context.Context, unitID string, pid int, ch chan<- Sample) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := s.Sample(unitID, pid)
			select {
			case ch <- sample:
			default:
				s.logger.Printf("Warning: dropped %s sample for %s (receiver busy)", sample.Severity, unitID)
			}
		}
	}
}
