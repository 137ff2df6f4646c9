// Package simulation runs the Monte-Carlo evaluation of the kriging-based
// interference power constraint.
//
// Each trial draws a fresh measurement set with correlated shadowing, fits a
// semivariogram model, kriges the received power at the primary receiver,
// derives the secondary power limit and checks the realised SIR. Trials run
// on a pool of workers; every worker keeps private sums that are merged once
// all workers are done.
package simulation

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// Simulator runs trials for a fixed set of parameters
type Simulator struct {
	params *Params
	log    logrus.FieldLogger

	progressMu sync.Mutex
}

// New creates a simulator after validating params
func New(params *Params) (*Simulator, error) {
	if params == nil {
		return nil, errors.New("simulation parameters are required")
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid simulation parameters")
	}

	log := params.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Simulator{params: params, log: log}, nil
}

// Params returns the simulator's parameters
func (s *Simulator) Params() *Params {
	return s.params
}

// Run executes Params.Trials successful trials across the worker pool and
// returns the merged statistics.
//
// Under FailSkip a failed trial is discarded and redrawn with a fresh
// stream, at most MaxRetries times per trial; exhausting the retries or any
// failure under FailAbort stops the run with that error. Cancelling ctx stops
// handing out new trials; trials already running finish, and the statistics
// of the completed trials are returned together with the context's error.
func (s *Simulator) Run(ctx context.Context) (*Metrics, error) {
	p := s.params
	workers := p.workers()
	runID := uuid.New().String()
	log := s.log.WithField("run_id", runID)

	log.WithFields(logrus.Fields{
		"trials":  p.Trials,
		"workers": workers,
		"samples": p.Samples,
		"seed":    p.Seed,
		"family":  p.Family.Name(),
	}).Info("starting simulation")
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	errc := make(chan error, 1)
	accs := make([]*accumulator, workers)
	var completed int64

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		acc := newAccumulator()
		accs[w] = acc

		go func(workerID int) {
			defer wg.Done()

			wlog := log.WithField("worker", workerID)
			rng := rand.New(rand.NewSource(p.Seed))
			for trial := range jobs {
				outcome, err := s.attempt(rng, trial, acc, wlog)
				if err != nil {
					select {
					case errc <- err:
					default:
					}
					cancel()
					return
				}
				acc.add(outcome, p.Rule.SIRThresholdDb)

				done := int(atomic.AddInt64(&completed, 1))
				s.reportProgress(done, p.Trials)
			}
		}(w)
	}

feed:
	for i := 0; i < p.Trials; i++ {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	total := newAccumulator()
	for _, acc := range accs {
		total.merge(acc)
	}
	metrics := total.metrics()
	metrics.RunID = runID
	metrics.Duration = time.Since(start)

	select {
	case err := <-errc:
		log.WithError(err).WithField("error_kind", FailureKind(err)).Error("simulation aborted")
		return nil, err
	default:
	}

	fields := logrus.Fields{
		"trials":   metrics.Trials,
		"failed":   metrics.Failed,
		"outage":   metrics.OutageProbability,
		"rmse_db":  metrics.RMSEDb,
		"duration": metrics.Duration.Round(time.Millisecond),
	}
	if err := ctx.Err(); err != nil {
		log.WithFields(fields).Warn("simulation cancelled")
		return &metrics, errors.Wrapf(err, "simulation cancelled after %d trials", metrics.Trials)
	}
	log.WithFields(fields).Info("simulation finished")
	return &metrics, nil
}

// attempt runs trial, redrawing it under FailSkip until it succeeds or the
// retries are exhausted. Failed attempts are counted in acc.
func (s *Simulator) attempt(rng *rand.Rand, trial int, acc *accumulator, log logrus.FieldLogger) (TrialOutcome, error) {
	p := s.params
	for attempt := 0; ; attempt++ {
		rng.Seed(trialSeed(p.Seed, trial, attempt))
		outcome, err := s.RunTrial(rng)
		if err == nil {
			return outcome, nil
		}

		kind := FailureKind(err)
		acc.fail(kind)
		if p.FailurePolicy == FailAbort {
			return TrialOutcome{}, errors.Wrapf(err, "trial %d", trial)
		}
		if attempt >= p.MaxRetries {
			return TrialOutcome{}, errors.Wrapf(err, "trial %d failed %d times", trial, attempt+1)
		}
		log.WithFields(logrus.Fields{
			"trial":      trial,
			"attempt":    attempt,
			"error_kind": kind,
		}).WithError(err).Debug("skipping failed trial")
	}
}

func (s *Simulator) reportProgress(completed, total int) {
	if s.params.Progress == nil {
		return
	}
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.params.Progress(completed, total, "trials")
}

// trialSeed derives the stream seed of one trial attempt from the run seed,
// so results do not depend on how trials are spread over workers
func trialSeed(seed uint64, trial, attempt int) uint64 {
	x := seed ^ splitmix(uint64(trial)+1) ^ splitmix(uint64(attempt)<<32|0x9e37)
	return splitmix(x)
}

// splitmix is the SplitMix64 finalizer
func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
