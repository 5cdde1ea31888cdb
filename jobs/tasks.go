package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileImport reconciles a spreadsheet dropped in the import directory.
	TaskReconcileImport = "reconcile:import"
	// TaskDashboardWarmup preloads the month-to-date dashboard views.
	TaskDashboardWarmup = "dashboard:warmup"
)

// ReconcileImportPayload names the file to import and how to reconcile it. Path is
// relative to the worker's import directory.
type ReconcileImportPayload struct {
	Path            string `json:"path"`
	Table           string `json:"table"`
	Mode            string `json:"mode,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	Confirm         bool   `json:"confirm,omitempty"`
	AsOf            string `json:"as_of,omitempty"`
	RegisterOffices bool   `json:"register_offices,omitempty"`
}

// DashboardWarmupPayload optionally pins the day the month-to-date range ends on.
type DashboardWarmupPayload struct {
	Date string `json:"date,omitempty"`
}

// NewReconcileImportTask constructs an Asynq task for an import.
func NewReconcileImportTask(payload ReconcileImportPayload) (*asynq.Task, error) {
	if payload.Path == "" || payload.Table == "" {
		return nil, fmt.Errorf("jobs: reconcile import needs path and table")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileImport, data), nil
}

// NewDashboardWarmupTask constructs a warmup task. An empty date warms the current month.
func NewDashboardWarmupTask(date string) (*asynq.Task, error) {
	data, err := json.Marshal(DashboardWarmupPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}
