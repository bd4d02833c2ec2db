package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/restoreops/rds-restore/internal/restore"
	"github.com/restoreops/rds-restore/internal/verify"
)

// ReportVersion is the current report format version.
const ReportVersion = "1"

// Report records one restore run: the step outcomes, any post-restore
// checks, and a signature so the report can serve as an audit artifact.
type Report struct {
	Version     string    `json:"version"`
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name"`
	MachineID   string    `json:"machine_id"`

	Run       *restore.Result      `json:"run"`
	Checks    []verify.CheckResult `json:"checks,omitempty"`
	Summary   Summary              `json:"summary"`
	Signature string               `json:"signature,omitempty"`
}

// Summary provides an overview of the run outcome.
type Summary struct {
	Success          bool   `json:"success"`
	AlreadyComplete  bool   `json:"already_complete"`
	CompletedSteps   int    `json:"completed_steps"`
	SkippedSteps     int    `json:"skipped_steps"`
	FailedSteps      int    `json:"failed_steps"`
	CriticalFailures int    `json:"critical_failures"`
	WarningFailures  int    `json:"warning_failures"`
	TotalDuration    string `json:"total_duration"`
}

// Builder helps construct reports.
type Builder struct {
	report *Report
}

// NewBuilder creates a new report builder.
func NewBuilder() *Builder {
	return &Builder{
		report: &Report{
			Version:   ReportVersion,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (b *Builder) WithID(id string) *Builder {
	b.report.ID = id
	return b
}

func (b *Builder) WithProject(id, name string) *Builder {
	b.report.ProjectID = id
	b.report.ProjectName = name
	return b
}

func (b *Builder) WithMachineID(machineID string) *Builder {
	b.report.MachineID = machineID
	return b
}

func (b *Builder) WithRun(run *restore.Result) *Builder {
	b.report.Run = run
	return b
}

func (b *Builder) WithChecks(checks []verify.CheckResult) *Builder {
	b.report.Checks = checks
	return b
}

// Build finalizes the report and computes the summary.
func (b *Builder) Build() *Report {
	b.computeSummary()
	return b.report
}

func (b *Builder) computeSummary() {
	s := Summary{}

	if b.report.Run != nil {
		s.AlreadyComplete = b.report.Run.AlreadyComplete
		var total time.Duration
		for _, step := range b.report.Run.Steps {
			total += step.Duration
			switch step.Status {
			case restore.StepCompleted:
				s.CompletedSteps++
			case restore.StepSkipped:
				s.SkippedSteps++
			case restore.StepFailed:
				s.FailedSteps++
			}
		}
		s.TotalDuration = total.Round(time.Millisecond).String()
	}

	s.CriticalFailures, s.WarningFailures, _ = verify.CountFailures(b.report.Checks)
	s.Success = s.FailedSteps == 0 && s.CriticalFailures == 0

	b.report.Summary = s
}

// WriteJSON writes the report to a JSON file in dir.
func WriteJSON(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, Filename(report))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

// Filename returns the canonical file name for a report.
func Filename(report *Report) string {
	return fmt.Sprintf("%s_%s.json", report.Timestamp.Format("20060102_150405"), report.ID)
}

// Load reads a report from a JSON file.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListSummary is a lightweight summary for listing reports.
type ListSummary struct {
	ID             string
	Timestamp      time.Time
	SourceInstance string
	Success        bool
	Path           string
}

// List returns all reports in dir, newest first.
func List(dir string) ([]*ListSummary, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var reports []*ListSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		rpt, err := Load(path)
		if err != nil {
			continue // Skip invalid reports
		}

		summary := &ListSummary{
			ID:        rpt.ID,
			Timestamp: rpt.Timestamp,
			Success:   rpt.Summary.Success,
			Path:      path,
		}
		if rpt.Run != nil {
			summary.SourceInstance = rpt.Run.SourceInstance
		}
		reports = append(reports, summary)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})

	return reports, nil
}
