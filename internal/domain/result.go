package domain

// Status is the outcome class of one orchestrator run.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusDumpFailed   Status = "dump_failed"
	StatusUploadFailed Status = "upload_failed"
	StatusConfigFailed Status = "config_failed"
)

// Step names a stage of the backup lifecycle.
type Step string

const (
	StepDump          Step = "dump"
	StepUploadDaily   Step = "upload_daily"
	StepUploadMonthly Step = "upload_monthly"
	StepList          Step = "list"
	StepDelete        Step = "delete"
	StepNotify        Step = "notify"
	StepCleanup       Step = "cleanup"
)

// StepError records a failed step that did not abort the run.
type StepError struct {
	Step Step
	Err  error
}

func (e StepError) Error() string {
	return string(e.Step) + ": " + e.Err.Error()
}

// RunResult is the outcome of one backup run.
type RunResult struct {
	Status   Status
	Artifact *Artifact
	Pruned   []string
	Monthly  bool
	Err      error
	Warnings []StepError
}

// Failed reports whether the run ended without a usable offsite copy.
func (r RunResult) Failed() bool {
	return r.Status != StatusSuccess
}

// ExitCode maps the status to the process exit code.
func (r RunResult) ExitCode() int {
	if r.Failed() {
		return 1
	}
	return 0
}

// Warn appends a non-fatal step failure.
func (r *RunResult) Warn(step Step, err error) {
	r.Warnings = append(r.Warnings, StepError{Step: step, Err: err})
}
