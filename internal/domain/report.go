package domain

import (
	"encoding/json"
	"time"
)

const (
	EntryPlanned = "planned"
	EntryRenamed = "renamed"
	EntrySkipped = "skipped"
	EntryFailed  = "failed"
	EntryPacked  = "packed"
)

const (
	ErrCodeFolderNotFound    = "folder_not_found"
	ErrCodeFolderBusy        = "folder_busy"
	ErrCodeScanFailed        = "scan_failed"
	ErrCodeBackupFailed      = "backup_failed"
	ErrCodeRenameFailed      = "rename_failed"
	ErrCodeReportFailed      = "report_failed"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
//
// ErrorCode 非空表示整次运行失败。目录级失败（例如目录不存在）时 Entries 为空；
// 执行阶段之后的失败（备份目录、写 report）保留已完成的条目。
type RunReport struct {
	Path      string `json:"path"`
	DryRun    bool   `json:"dry_run"`
	BackupDir string `json:"backup_dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ErrorCode  string `json:"error_code"`
	ErrorMsg   string `json:"error_msg"`

	Summary ReportSummary `json:"summary"`
	Entries []EntryResult `json:"entries"`
	Log     []string      `json:"log"`
}

type ReportSummary struct {
	Planned int `json:"planned"`
	Renamed int `json:"renamed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type EntryResult struct {
	Original string `json:"original"`
	// 编号以 JSON 数字输出，可以超出 int64 范围。
	DetectedID *json.Number `json:"detected_id"`
	FinalID    json.Number  `json:"final_id"`
	Target     string       `json:"target"`
	Status     string       `json:"status"`
	// ErrorCode 只在 status=failed 时非空：backup_failed 或 rename_failed。
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// NewEntryResult 由 PlanEntry 生成一条结果，状态由执行器填写。
func NewEntryResult(e PlanEntry, status string) EntryResult {
	return EntryResult{
		Original:   e.Item.Name,
		DetectedID: e.DetectedPtr(),
		FinalID:    json.Number(e.FinalID),
		Target:     e.TargetName,
		Status:     status,
	}
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) nil 切片替换为空切片（JSON 输出 [] 而不是 null）
// 3) summary 由 entries 计算得出
//
// entries 保持计划顺序，不排序。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Entries == nil {
		r.Entries = []EntryResult{}
	}
	if r.Log == nil {
		r.Log = []string{}
	}

	var s ReportSummary
	for _, e := range r.Entries {
		switch e.Status {
		case EntryPlanned:
			s.Planned++
		case EntryRenamed:
			s.Renamed++
		case EntrySkipped:
			s.Skipped++
		case EntryFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// OK 表示没有致命错误且没有失败条目。
func (r RunReport) OK() bool {
	return r.ErrorCode == "" && r.Summary.Failed == 0
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
