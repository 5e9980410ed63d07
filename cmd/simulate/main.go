// simulate runs the configured simulation batch once and exits.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SignalSim/internal/di"
	"SignalSim/internal/domain/models"
	"SignalSim/internal/domain/repository"
	internalrepo "SignalSim/internal/repository"
	"SignalSim/internal/usecase"
	"SignalSim/pkg/config"
	applogger "SignalSim/pkg/logger"
	"SignalSim/pkg/metrics"

	"github.com/spf13/cobra"
)

var (
	configPath string
	csvPath    string
	modelNames []string
	horizons   []int
	capital    float64
	fraction   float64
	persist    bool
	publish    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the configured signal simulations once",
		Long: `simulate replays stored model signals through the trading engine for every
configured (model, horizon) pair and prints one completion line per run.`,
		SilenceUsage: true,
		RunE:         runBatch,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.Flags().StringVar(&csvPath, "csv", "", "read signals from this CSV instead of ClickHouse ({model} is replaced by the model name)")
	rootCmd.Flags().StringSliceVarP(&modelNames, "model", "m", nil, "models to run (default: all configured)")
	rootCmd.Flags().IntSliceVar(&horizons, "horizon", nil, "horizons in hours to run (default: all configured)")
	rootCmd.Flags().Float64Var(&capital, "capital", 0, "starting capital (default: simulation.starting_capital)")
	rootCmd.Flags().Float64Var(&fraction, "position-size", 0, "fraction of cash per BUY (default: simulation.position_size)")
	rootCmd.Flags().BoolVar(&persist, "persist", false, "store trades, snapshots and run rows in ClickHouse")
	rootCmd.Flags().BoolVar(&publish, "publish", false, "publish run events to the Kafka events topic")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	if csvPath != "" {
		cfg.Simulation.Source = "csv"
		cfg.Simulation.CSVPath = csvPath
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := applogger.New(&cfg.Log.Config)
	if err != nil {
		return err
	}

	rc := di.ProvideRunnerConfig(cfg)
	runs, err := usecase.PlanRuns(rc.Runs, models.SimulationRequest{Models: modelNames, Horizons: horizons})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no (model, horizon) pairs configured")
	}

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	opts := []usecase.RunnerOption{usecase.WithRunnerLogger(l)}
	var source repository.SignalSource
	if cfg.Simulation.Source == "csv" && !persist {
		source = internalrepo.NewCSVSignalSource(cfg.Simulation.CSVPath)
	} else {
		ch, cleanup, err := di.ProvideClickHouseClient(cfg)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, cleanup)
		source = di.ProvideSignalSource(cfg, di.ProvideSignalStore(ch, l))
		if persist {
			opts = append(opts, usecase.WithEventStore(di.ProvideEventStore(ch, l)))
		}
	}

	if publish {
		if !cfg.Kafka.Enabled || cfg.Kafka.EventsTopic == "" {
			return fmt.Errorf("--publish needs kafka.enabled and kafka.events_topic")
		}
		producer, cleanup, err := di.ProvideKafkaProducer(cfg)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, cleanup)
		opts = append(opts, usecase.WithEventPublisher(di.ProvideEventPublisher(cfg, producer)))
	}

	runner := usecase.NewSimulationRunner(source, metrics.New(), rc, opts...)
	p := usecase.NewBatchParams(runs, models.SimulationRequest{StartingCapital: capital, PositionSize: fraction})
	sums := runner.RunBatch(ctx, p)

	failed := 0
	out := cmd.OutOrStdout()
	for _, s := range sums {
		if s.Status != models.RunCompleted {
			failed++
			fmt.Fprintf(out, "%s Simulation Failed: %s\n", s.ModelID, s.Error)
			continue
		}
		fmt.Fprintf(out, "%s Simulation Complete: Buys: %d, Sells: %d (final value %s)\n",
			s.ModelID, s.Buys, s.Sells, s.FinalValue.StringFixed(2))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(sums))
	}
	return nil
}
