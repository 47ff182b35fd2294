package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"oilsim/internal/config"
	"oilsim/internal/performance"
	"oilsim/internal/stats"
)

// StudyConfig parameterizes a Monte Carlo study over seeds.
type StudyConfig struct {
	// Runs is the number of simulations; seeds are BaseSeed..BaseSeed+Runs-1.
	Runs int
	// BaseSeed defaults to the configuration's seed.
	BaseSeed uint64
	// Workers sizes the pool; 0 means one per CPU.
	Workers int
	// VaRConfidence defaults to 0.95.
	VaRConfidence float64
}

// RunOutcome is one simulation's result within a study. A failed seed
// keeps its error and partial result; it is recorded, never retried.
type RunOutcome struct {
	Seed   uint64
	Result *Result
	Err    error
}

// StudyResult aggregates a study's outcomes.
type StudyResult struct {
	Fingerprint string
	Outcomes    []RunOutcome
	Aggregate   stats.Aggregate
}

// RunStudy fans simulations out over a worker pool. Each simulation
// owns its PRNG, event store and position states; outcomes arrive in
// any order and are sorted by seed before aggregation. Cancellation is
// cooperative: a started simulation runs to completion, unstarted seeds
// are skipped.
func RunStudy(ctx context.Context, cfg *config.Config, sc StudyConfig, logger zerolog.Logger) (*StudyResult, error) {
	if sc.Runs <= 0 {
		sc.Runs = 1
	}
	if sc.BaseSeed == 0 {
		sc.BaseSeed = cfg.Simulation.Seed
	}
	if sc.VaRConfidence <= 0 || sc.VaRConfidence >= 1 {
		sc.VaRConfidence = 0.95
	}

	log := logger.With().Str("component", "study").Int("runs", sc.Runs).Logger()
	log.Info().Uint64("base_seed", sc.BaseSeed).Msg("study started")

	var (
		mu       sync.Mutex
		outcomes []RunOutcome
	)

	pool := performance.NewWorkerPool(sc.Workers)
	pool.Start()
	for i := 0; i < sc.Runs; i++ {
		if ctx.Err() != nil {
			break
		}
		seed := sc.BaseSeed + uint64(i)
		task := func() {
			if ctx.Err() != nil {
				return
			}

			runCfg := *cfg
			runCfg.Simulation.Seed = seed
			outcome := RunOutcome{Seed: seed}
			sim, err := NewSimulation(&runCfg, log, Options{})
			if err != nil {
				outcome.Err = err
			} else {
				// A started simulation runs to completion; studies do
				// not cancel mid-run.
				outcome.Result, outcome.Err = sim.Run(context.Background())
			}
			if outcome.Err != nil {
				log.Warn().Uint64("seed", seed).Err(outcome.Err).Msg("run failed")
			}

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}
		if !pool.Submit(task) {
			break
		}
	}
	pool.Drain()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Seed < outcomes[j].Seed })

	var pnls []float64
	failures := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures++
			continue
		}
		pnls = append(pnls, o.Result.Summary.NetPnL)
	}

	result := &StudyResult{
		Fingerprint: fingerprintWithoutSeed(cfg),
		Outcomes:    outcomes,
		Aggregate:   stats.AggregateRuns(pnls, failures, cfg.Simulation.Days, sc.VaRConfidence),
	}
	log.Info().
		Int("completed", len(pnls)).
		Int("failures", failures).
		Float64("mean_pnl", result.Aggregate.Mean).
		Msg("study finished")

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// fingerprintWithoutSeed fingerprints the parameter tuple shared by all
// runs of a study.
func fingerprintWithoutSeed(cfg *config.Config) string {
	c := *cfg
	c.Simulation.Seed = 0
	return c.Fingerprint()
}
