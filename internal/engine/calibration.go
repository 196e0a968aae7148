// SPDX-License-Identifier: MIT
package engine

import (
	"beatbox/internal/calibration"
	"beatbox/internal/errs"
	applog "beatbox/internal/log"
	"beatbox/internal/telemetry"
)

// StartCalibration begins a guided calibration run. The analysis loop feeds
// it from the live or fixture stream; only one run can be active.
func (e *Engine) StartCalibration() error {
	if e.cal.Load() != nil {
		return errs.New(errs.CodeAlreadyInProgress, "calibration already in progress")
	}

	proc := calibration.NewProcedure(e.cfg.Calibration.SamplesPerSound, e.cfg.Calibration.NoiseFloorFrames)
	e.cal.Store(proc)
	e.progress.Publish(proc.Progress())
	e.publishLifecycle("calibration_started")
	applog.Infof("Engine: calibration started")
	return nil
}

// CancelCalibration abandons the active run, keeping the previous thresholds.
// Cancelling when no run is active is a no-op.
func (e *Engine) CancelCalibration() {
	if e.cal.Swap(nil) != nil {
		e.publishLifecycle("calibration_cancelled")
		applog.Infof("Engine: calibration cancelled")
	}
}

// CalibrationActive reports whether a calibration run is in progress.
func (e *Engine) CalibrationActive() bool {
	return e.cal.Load() != nil
}

// CalibrationProgress snapshots the active run.
func (e *Engine) CalibrationProgress() (calibration.Progress, error) {
	cal := e.cal.Load()
	if cal == nil {
		return calibration.Progress{}, errs.New(errs.CodeNotComplete, "no calibration in progress")
	}
	return cal.Progress(), nil
}

// ConfirmStep advances the active run past a completed sound step. When the
// final step confirms, the finished thresholds are adopted atomically and
// the run ends.
func (e *Engine) ConfirmStep() (calibration.Progress, error) {
	cal := e.cal.Load()
	if cal == nil {
		return calibration.Progress{}, errs.New(errs.CodeNotComplete, "no calibration in progress")
	}

	prog, err := cal.ConfirmStep()
	if err != nil {
		return prog, err
	}
	e.progress.Publish(prog)

	if prog.Step == calibration.StepComplete {
		state, err := cal.Result()
		if err != nil {
			return prog, err
		}
		e.adoptState(state)
		e.cal.Store(nil)
		e.publishLifecycle("calibration_complete")
	}
	return prog, nil
}

// RetryStep discards the active run's current sound collection.
func (e *Engine) RetryStep() (calibration.Progress, error) {
	cal := e.cal.Load()
	if cal == nil {
		return calibration.Progress{}, errs.New(errs.CodeNotComplete, "no calibration in progress")
	}
	prog, err := cal.RetryStep()
	if err == nil {
		e.progress.Publish(prog)
	}
	return prog, err
}

// ManualAcceptLastCandidate promotes the most recent soft-rejected sample.
func (e *Engine) ManualAcceptLastCandidate() (calibration.Progress, error) {
	cal := e.cal.Load()
	if cal == nil {
		return calibration.Progress{}, errs.New(errs.CodeNotComplete, "no calibration in progress")
	}
	prog, err := cal.ManualAcceptLastCandidate()
	if err == nil {
		e.progress.Publish(prog)
	}
	return prog, err
}

// LoadCalibrationState installs a persisted threshold snapshot. The swap is
// atomic: the next classification sees the new thresholds, emitted results
// are untouched.
func (e *Engine) LoadCalibrationState(data []byte) error {
	state, err := calibration.ParseState(data)
	if err != nil {
		return err
	}
	e.adoptState(state)
	applog.Infof("Engine: calibration state loaded (level %d, calibrated=%v)", state.Level, state.IsCalibrated)
	return nil
}

// CalibrationStateJSON serializes the active threshold state.
func (e *Engine) CalibrationStateJSON() ([]byte, error) {
	return e.calState.Load().JSON()
}

// CalibrationState returns a copy of the active threshold state.
func (e *Engine) CalibrationState() calibration.State {
	return *e.calState.Load()
}

// ApplyParamPatch overlays sparse tempo and threshold overrides onto the
// running engine. The patch must validate as a whole before anything is
// applied; a rejected patch leaves tempo and state untouched.
func (e *Engine) ApplyParamPatch(p telemetry.ParamPatch) error {
	if err := p.Validate(); err != nil {
		return err
	}

	next := *e.calState.Load()
	if p.KickCentroid != nil {
		next.TKickCentroid = *p.KickCentroid
	}
	if p.KickZcr != nil {
		next.TKickZcr = *p.KickZcr
	}
	if p.SnareCentroid != nil {
		next.TSnareCentroid = *p.SnareCentroid
	}
	if p.HihatZcr != nil {
		next.THihatZcr = *p.HihatZcr
	}
	if p.NoiseFloorRMS != nil {
		next.NoiseFloorRMS = *p.NoiseFloorRMS
	}
	if err := next.Validate(); err != nil {
		return err
	}

	e.adoptState(&next)
	if p.Bpm != nil {
		// Range-checked by p.Validate, so the grid swap cannot fail here.
		if err := e.SetBpm(*p.Bpm); err != nil {
			return err
		}
	}
	applog.Infof("Engine: parameter patch applied")
	return nil
}

// adoptState swaps the classifier thresholds and re-derives the level gate.
func (e *Engine) adoptState(state *calibration.State) {
	e.calState.Store(state)
	if state.NoiseFloorRMS > 0 {
		threshold := state.NoiseFloorRMS * gatePeakScale
		e.gateUpdate.Store(&threshold)
	}
}
