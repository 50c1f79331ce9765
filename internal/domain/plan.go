package domain

import "encoding/json"

// PlanEntry 是一张图片的重命名计划。
//
// 同一份计划内：FinalID 两两不同（多个文件识别到同一编号时除外，它们共享编号、靠后缀区分），
// TargetName 在同一目标范围（目录或压缩包）内两两不同。
type PlanEntry struct {
	Item SourceItem

	DetectedID ID
	Detected   bool

	FinalID    ID
	TargetName string
}

// DetectedPtr 便于 JSON 输出：未识别时为 nil。
func (e PlanEntry) DetectedPtr() *json.Number {
	if !e.Detected {
		return nil
	}
	v := json.Number(e.DetectedID)
	return &v
}

// ApplyResult 是任一执行器（原地重命名 / 打包）的输出。
// Entries 与计划顺序一致；Log 是给操作者看的逐行动作日志。
type ApplyResult struct {
	Entries []EntryResult
	Log     []string
}
