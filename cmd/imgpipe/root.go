package main

import (
	"database/sql"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dcshock/imgpipe/config"
	"github.com/dcshock/imgpipe/logging"
	"github.com/dcshock/imgpipe/observer"
	"github.com/dcshock/imgpipe/pipeline"
)

// app holds what every subcommand shares. It is populated in the root
// command's PersistentPreRunE.
type app struct {
	settings *config.Settings
	log      *zap.Logger
	registry *prometheus.Registry
	db       *sql.DB // nil unless IMGPIPE_RUN_DB is set

	logObs     *observer.LogObserver
	metricsObs *observer.MetricsObserver
	sqlObs     *observer.SQLObserver

	dumpMetrics bool
	out         io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	root := &cobra.Command{
		Use:           "imgpipe",
		Short:         "Ownership-safe image transform pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "print collected metrics in Prometheus text format when done")
	root.AddCommand(newReproCmd(a), newRunCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	s, err := config.LoadSettings()
	if err != nil {
		return err
	}
	a.settings = s
	a.log, err = logging.New(logging.Config{Level: s.LogLevel, Development: s.LogDevelopment})
	if err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	a.logObs = observer.NewLogObserver(a.log)
	a.metricsObs = observer.NewMetricsObserver(a.registry)

	if s.RunDB != "" {
		db, err := sql.Open("sqlite3", s.RunDB)
		if err != nil {
			return errors.Wrapf(err, "open %s", s.RunDB)
		}
		db.SetMaxOpenConns(1)
		if err := observer.Migrate(cmd.Context(), db); err != nil {
			_ = db.Close()
			return err
		}
		a.db = db
		a.sqlObs = observer.NewSQLObserver(db)
	}
	return nil
}

// observer combines the log, metrics and (when enabled) run history observers.
func (a *app) observer() pipeline.Observer {
	list := []pipeline.Observer{a.logObs, a.metricsObs}
	if a.sqlObs != nil {
		list = append(list, a.sqlObs)
	}
	return pipeline.MultiObserver(list...)
}

// observerRegistry exposes the same observers by name to chain configs.
func (a *app) observerRegistry() *config.ObserverRegistry {
	r := config.NewObserverRegistry()
	r.Register("log", a.logObs)
	r.Register("metrics", a.metricsObs)
	if a.sqlObs != nil {
		r.Register("sql", a.sqlObs)
	}
	return r
}

func (a *app) close() error {
	var err error
	if a.dumpMetrics && a.registry != nil {
		err = writeMetrics(a.out, a.registry)
	}
	if a.db != nil {
		err = errors.CombineErrors(err, a.db.Close())
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}
