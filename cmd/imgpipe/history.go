package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or the stages of one run (needs IMGPIPE_RUN_DB)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sqlObs == nil {
				return errors.New("run history is disabled; set IMGPIPE_RUN_DB")
			}
			if len(args) == 1 {
				return a.printStages(cmd, args[0])
			}
			return a.printRuns(cmd, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func (a *app) printRuns(cmd *cobra.Command, limit int) error {
	runs, err := a.sqlObs.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		pterm.Info.Println("no runs recorded")
		return nil
	}
	data := pterm.TableData{{"Run", "Pipeline", "Status", "Started", "Duration", "Error"}}
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Microsecond).String()
		}
		data = append(data, []string{r.RunID, r.Name, r.Status, r.StartedAt.Format(time.RFC3339), duration, r.Error})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func (a *app) printStages(cmd *cobra.Command, runID string) error {
	stages, err := a.sqlObs.Stages(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		return errors.Newf("no stages recorded for run %s", runID)
	}
	data := pterm.TableData{{"#", "Stage", "Policy", "Status", "ms", "Error"}}
	for _, s := range stages {
		data = append(data, []string{fmt.Sprint(s.Index), s.Name, s.Policy, s.Status, fmt.Sprint(s.DurationMs), s.Error})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
