package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SummaryKeepsOrderAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		DryRun:     false,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Entries: []EntryResult{
			{Original: "b.png", Status: EntryRenamed},
			{Original: "001.png", Status: EntrySkipped},
			{Original: "a.png", Status: EntryFailed},
			{Original: "c.png", Status: EntryRenamed},
		},
	}

	r.Finalize()

	// entries 保持计划顺序。
	got := []string{r.Entries[0].Original, r.Entries[1].Original, r.Entries[2].Original, r.Entries[3].Original}
	want := []string{"b.png", "001.png", "a.png", "c.png"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries 顺序被改变：%v", got)
		}
	}
	if r.Summary.Renamed != 2 || r.Summary.Skipped != 1 || r.Summary.Failed != 1 || r.Summary.Planned != 0 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}
	if r.OK() {
		t.Fatalf("存在失败条目时 OK() 应为 false")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte("\"log\":[]")) {
		t.Fatalf("空 log 应输出 []：%s", string(b))
	}
}

func TestEntryResult_DetectedIDNullWhenAbsent(t *testing.T) {
	e := PlanEntry{Item: NewSourceItem("IMG.png", "/x/IMG.png"), FinalID: "1", TargetName: "001.png"}
	b, err := json.Marshal(NewEntryResult(e, EntryPlanned))
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"detected_id\":null")) {
		t.Fatalf("未识别编号时 detected_id 应为 null：%s", string(b))
	}

	e.Detected, e.DetectedID = true, "0"
	b, _ = json.Marshal(NewEntryResult(e, EntryPlanned))
	if !bytes.Contains(b, []byte("\"detected_id\":0")) {
		t.Fatalf("编号 0 也应输出：%s", string(b))
	}

	// 超出 int64 的编号仍以 JSON 数字原样输出。
	huge := ID("123456789012345678901234567890")
	e.DetectedID, e.FinalID = huge, huge
	b, _ = json.Marshal(NewEntryResult(e, EntryPlanned))
	if !bytes.Contains(b, []byte(`"detected_id":`+string(huge)+`,"final_id":`+string(huge))) {
		t.Fatalf("大编号输出不符合预期：%s", string(b))
	}
}

func TestID_LessIsNumeric(t *testing.T) {
	if !ID("9").Less("10") || ID("10").Less("9") || ID("12").Less("12") || !ID("12").Less("13") {
		t.Fatalf("ID.Less 应按数值比较")
	}
	if IDFromInt(42) != "42" {
		t.Fatalf("IDFromInt 不符合预期：%q", IDFromInt(42))
	}
}

func TestNewSourceItem_LowercaseExtKeepsStem(t *testing.T) {
	it := NewSourceItem("Phone_7Ultra.JPG", "upload:0")
	if it.Stem != "Phone_7Ultra" || it.Ext != ".jpg" {
		t.Fatalf("stem/ext 不符合预期：%+v", it)
	}

	it = NewSourceItem("archive.tar.PNG", "upload:1")
	if it.Stem != "archive.tar" || it.Ext != ".png" {
		t.Fatalf("只应去掉最后一个扩展名：%+v", it)
	}

	for _, name := range []string{".png", "a.", ".hidden"} {
		it = NewSourceItem(name, "h")
		if it.Stem != name || it.Ext != "" {
			t.Fatalf("%q 不应有扩展名：%+v", name, it)
		}
	}

	it = NewSourceItem("..png", "h")
	if it.Stem != "." || it.Ext != ".png" {
		t.Fatalf("..png 的扩展名应为 .png：%+v", it)
	}

	it = NewSourceItem("", "upload:2")
	if it.Stem != "" || it.Ext != "" {
		t.Fatalf("空文件名应得到空 stem/ext：%+v", it)
	}
}
