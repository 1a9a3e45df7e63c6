package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/onflow/flow-rangesync/cmd/rangesync/simulation"
	"github.com/onflow/flow-rangesync/engine/common/synchronization"
	"github.com/onflow/flow-rangesync/module"
	"github.com/onflow/flow-rangesync/module/irrecoverable"
	"github.com/onflow/flow-rangesync/module/metrics"
	"github.com/onflow/flow-rangesync/module/util"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Sync a simulated chain from in-memory peers",
	RunE:  runSimulate,
}

func init() {
	flags := simulateCmd.Flags()
	flags.Int("peers", 8, "number of simulated peers")
	flags.Uint64("chain-height", 10_000, "height of the simulated chain")
	flags.Uint64("batch-size", 128, "maximum number of blocks per range request")
	flags.Uint32("max-parallel", 1, "maximum number of peers downloading the same range")
	flags.Float64("fail-rate", 0.05, "probability that a request fails or is never answered")
	flags.Duration("latency", 50*time.Millisecond, "upper bound of the simulated response latency")
	flags.Duration("request-timeout", time.Second, "time after which an unanswered request is given up")
	flags.Duration("timeout", 5*time.Minute, "time after which the simulation is aborted")
	flags.Int64("seed", time.Now().UnixNano(), "seed for the simulated network")
	flags.String("metrics-addr", "", "address to serve prometheus metrics on, disabled if empty")
	flags.Bool("progress-bar", false, "show a progress bar instead of logging the import progress")

	flags.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
	})
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	chain := simulation.NewChain(viper.GetUint64("chain-height"))

	network, err := simulation.NewNetwork(log, chain, simulation.NetworkConfig{
		Peers:    viper.GetInt("peers"),
		Latency:  viper.GetDuration("latency"),
		FailRate: viper.GetFloat64("fail-rate"),
		Seed:     viper.GetInt64("seed"),
	})
	if err != nil {
		return fmt.Errorf("could not create network: %w", err)
	}
	var progress util.LogProgressFunc
	if viper.GetBool("progress-bar") {
		bar := progressbar.Default(int64(chain.Height()), "importing blocks")
		defer func() { _ = bar.Finish() }()
		progress = func(add uint64) {
			_ = bar.Add64(int64(add))
		}
	}
	importer := simulation.NewImporter(log, chain, chain.Height(), progress)

	registry := prometheus.NewRegistry()
	engine, err := synchronization.New(
		log,
		metrics.NewSyncEngineCollector(registry),
		metrics.NewRangeTrackerCollector(registry),
		network,
		importer,
		0,
		synchronization.WithBatchSize(viper.GetUint64("batch-size")),
		synchronization.WithMaxParallelDownloads(viper.GetUint32("max-parallel")),
		synchronization.WithRequestTimeout(viper.GetDuration("request-timeout")),
		synchronization.WithScanInterval(100*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("could not create sync engine: %w", err)
	}
	network.Attach(engine)

	var servers []module.ReadyDoneAware
	if addr := viper.GetString("metrics-addr"); addr != "" {
		servers = append(servers, metrics.NewServer(log, addr, registry))
	}
	<-util.AllReady(servers...)
	defer func() { <-util.AllDone(servers...) }()

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)

	started := time.Now()
	engine.Start(signalerCtx)
	if err := util.WaitClosed(ctx, engine.Ready()); err != nil {
		cancel()
		<-engine.Done()
		return fmt.Errorf("sync engine did not start: %w", err)
	}

	for _, peer := range network.Peers() {
		engine.OnPeerStatus(peer.ID, peer.Best)
	}

	var syncErr error
	select {
	case <-importer.Reached():
	case <-ctx.Done():
		syncErr = fmt.Errorf("simulation aborted at height %d of %d: %w", importer.Height(), chain.Height(), ctx.Err())
	case err := <-errChan:
		syncErr = fmt.Errorf("sync engine failed: %w", err)
	}

	cancel()
	if err := util.WaitError(errChan, engine.Done()); err != nil && syncErr == nil {
		syncErr = fmt.Errorf("sync engine failed during shutdown: %w", err)
	}
	network.Wait()

	stats := network.Stats()
	log.Info().
		Uint64("height", importer.Height()).
		Str("duration", time.Since(started).Round(time.Millisecond).String()).
		Uint64("requests", stats.Requests).
		Uint64("failed", stats.Failed).
		Uint64("dropped", stats.Dropped).
		Uint64("responses", stats.Responses).
		Uint64("stale_responses", stats.Stale).
		Str("latency_median", stats.LatencyMedian.String()).
		Str("latency_p95", stats.LatencyP95.String()).
		Msg("simulation finished")

	if errors.Is(syncErr, context.Canceled) {
		return nil
	}
	return syncErr
}
