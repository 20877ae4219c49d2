// Package pipeline provides a single-value pipeline whose stages declare how
// they treat the resources in their input. A Pipeline runs stages in order
// (optionally with its own Source for standalone use); each stage's output is
// the next stage's input.
//
// # Ownership
//
// Every Stage carries a policy:
//
//   - Borrows: the stage reads its input and must not dispose anything in it.
//   - Consumes: the stage owns its input and may release it once it has
//     produced its output.
//
// When the value flowing through the pipeline implements resource.Carrier the
// executor enforces the policies instead of trusting them. A Borrows stage is
// handed a copy of the input whose images are borrowed views, so a defective
// stage cannot dispose the caller's images (a view has no disposal rights, and
// releasing it only drops a reference). A Consumes stage is handed owned clones
// of the caller's images unless RunOptions.TransferOwnership is set.
//
// Images a stage emits in slots its input did not have belong to the run and
// are released when the run ends, together with every view the run lent out.
// The caller's handles are never released by a guarded run, and after the run
// each caller image must be in the state it was in before; otherwise the run
// fails with ErrOwnershipViolation. The result is stripped of image slots
// (resource.Carrier.Strip), so it only holds derived values.
//
// RunOptions.Unguarded switches all of this off and releases every emitted
// image at the end of the run, aliases included. That is the behaviour of
// frameworks that decide disposal per stage output; it exists to reproduce the
// defects that follow from it (see the repro package).
//
// # Errors
//
// Stage errors are wrapped as "stage <index> (<name>): <cause>" so that the
// original cause stays reachable with errors.Is / errors.As. Lifecycle errors
// (resource.ErrUseAfterDispose and friends) are never recovered by the executor.
//
// # Observers
//
// Optional pre/post hooks (Observer) let you log, measure or persist runs:
// BeforePipeline, BeforeStage/AfterStage (with stage name, policy, duration),
// AfterPipeline. Pass RunOptions{Observer: obs} to RunWithInput. Combine several
// with MultiObserver. The observer package has logging, Prometheus and SQL
// implementations.
package pipeline
