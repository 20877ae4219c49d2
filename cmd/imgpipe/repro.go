package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dcshock/imgpipe/repro"
	"github.com/dcshock/imgpipe/transforms"
)

type reproFlags struct {
	scenario string
	guarded  bool
	sameSize string
	size     int
	resizeTo int
	images   int
	seed     uint64
	expect   string
}

func newReproCmd(a *app) *cobra.Command {
	var f reproFlags
	cmd := &cobra.Command{
		Use:   "repro",
		Short: "Fit and evaluate a classifier on random images and report whether caller images were disposed",
		Long: `Fits the default image classification chain on random images, transforms a
second random set, reads the outputs and the first input image, and evaluates.

Scenario a (2x2 images resized to 2x2, aliasing resize, unguarded executor)
reproduces the disposal of caller images. Scenario b uses 3x3 images and does
not. --guarded or --same-size copy|view fix scenario a.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.build(cmd.Flags(), a.settings.Unguarded)
			if err != nil {
				return err
			}
			r, err := repro.Run(cmd.Context(), s, &repro.Options{Logger: a.log, Observer: a.observer()})
			if err != nil {
				return err
			}
			if err := printReport(r); err != nil {
				return err
			}
			return f.check(r)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func (f *reproFlags) register(fl *pflag.FlagSet) {
	fl.StringVar(&f.scenario, "scenario", "a", "base scenario: a or b")
	fl.BoolVar(&f.guarded, "guarded", false, "track image ownership while transforming")
	fl.StringVar(&f.sameSize, "same-size", "", "resize behaviour when the size already matches: copy, view or alias")
	fl.IntVar(&f.size, "size", 0, "width and height of the random images")
	fl.IntVar(&f.resizeTo, "resize-to", 0, "width and height to resize to")
	fl.IntVar(&f.images, "images", 0, "images per data set")
	fl.Uint64Var(&f.seed, "seed", 0, "random seed")
	fl.StringVar(&f.expect, "expect", "", "fail unless the outcome is reproduced or clean")
}

func (f *reproFlags) build(fl *pflag.FlagSet, unguardedEnv bool) (repro.Scenario, error) {
	var s repro.Scenario
	switch strings.ToLower(f.scenario) {
	case "a":
		s = repro.ScenarioA()
	case "b":
		s = repro.ScenarioB()
	default:
		return s, errors.Newf("unknown scenario %q (want a or b)", f.scenario)
	}
	if fl.Changed("guarded") {
		s.Unguarded = !f.guarded
	} else if !s.Unguarded {
		s.Unguarded = unguardedEnv
	}
	if fl.Changed("same-size") {
		mode := transforms.SameSizeMode(f.sameSize)
		switch mode {
		case transforms.SameSizeCopy, transforms.SameSizeView, transforms.SameSizeAlias:
		default:
			return s, errors.Newf("unknown same-size mode %q", f.sameSize)
		}
		s.SameSize = mode
	}
	if fl.Changed("size") {
		s.ImageSize = f.size
	}
	if fl.Changed("resize-to") {
		s.ResizeTo = f.resizeTo
	}
	if fl.Changed("images") {
		s.Images = f.images
	}
	if fl.Changed("seed") {
		s.Seed = f.seed
	}
	return s, nil
}

func (f *reproFlags) check(r *repro.Report) error {
	switch f.expect {
	case "":
		return nil
	case "reproduced":
		if !r.Reproduced() {
			return errors.New("expected the defect to reproduce, but it did not")
		}
	case "clean":
		if r.Reproduced() || r.HeightErr != nil || r.EvaluateErr != nil {
			return errors.New("expected a clean run")
		}
	default:
		return errors.Newf("unknown --expect value %q", f.expect)
	}
	return nil
}

func printReport(r *repro.Report) error {
	s := r.Scenario
	pterm.DefaultSection.Printfln("Scenario %s", s.Name)
	pterm.Info.Printfln("%d images of %dx%d resized to %dx%d, same-size %s, unguarded %t",
		s.Images, s.ImageSize, s.ImageSize, s.ResizeTo, s.ResizeTo, sameSizeName(s.SameSize), s.Unguarded)

	if r.CollectErr != nil {
		pterm.Error.Printfln("collect outputs: %v", r.CollectErr)
	} else {
		data := pterm.TableData{{"Row", "PredictedLabelValue", "Score"}}
		for i, o := range r.Outputs {
			data = append(data, []string{fmt.Sprint(i), o.PredictedLabelValue, formatScores(o.Score)})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}

	if r.HeightErr != nil {
		pterm.Error.Printfln("first input image after collecting outputs: %v", r.HeightErr)
	} else {
		pterm.Success.Printfln("first input image height before %d, after %d", r.HeightBefore, r.HeightAfter)
	}
	if r.EvaluateErr != nil {
		pterm.Error.Printfln("evaluate: %v", r.EvaluateErr)
	} else if m := r.Metrics; m != nil {
		pterm.Success.Printfln("evaluated %d rows: micro accuracy %.3f, macro accuracy %.3f, log loss %.4f",
			m.Rows, m.MicroAccuracy, m.MacroAccuracy, m.LogLoss)
	}
	if len(r.Disposed) > 0 {
		pterm.Warning.Printfln("caller images disposed: %s", strings.Join(r.Disposed, ", "))
	}
	if r.Reproduced() {
		pterm.Warning.Println("defect reproduced: caller images were disposed by the pipeline")
	} else {
		pterm.Success.Println("defect not reproduced")
	}
	return nil
}

func sameSizeName(m transforms.SameSizeMode) string {
	if m == "" {
		return string(transforms.SameSizeCopy)
	}
	return string(m)
}

func formatScores(scores []float64) string {
	parts := make([]string, len(scores))
	for i, v := range scores {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
