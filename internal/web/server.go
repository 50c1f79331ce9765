// Package web 是上传模式的 HTTP 前端：上传图片，预览计划，下载改名后的 zip。
//
// 每个请求独立规划（空 scope），请求之间不共享任何状态。
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/John-Robertt/imgseq/internal/app/pack"
	"github.com/John-Robertt/imgseq/internal/config"
	"github.com/John-Robertt/imgseq/internal/domain"
	"github.com/John-Robertt/imgseq/internal/preview"
	"github.com/John-Robertt/imgseq/internal/scan"
)

// FieldName 是上传表单中文件字段的名字。
const FieldName = "files"

// 解析 multipart 时保留在内存中的上限，超出部分落临时文件；总大小由 MaxUploadBytes 限制。
const multipartMemory = 32 << 20

type server struct {
	maxBytes int64
	tpl      *template.Template
}

// NewServer 创建上传前端的 handler。
func NewServer(cfg config.ServerConfig) http.Handler {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = int64(config.DefaultMaxUploadMB) << 20
	}
	s := &server{
		maxBytes: maxBytes,
		tpl:      template.Must(template.New("page").Parse(pageTpl)),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /preview", s.handlePreview)
	mux.HandleFunc("POST /rename", s.handleRename)
	mux.Handle("GET /health", HealthHandler())
	return mux
}

// HealthHandler 返回固定的 {"status":"ok"}。
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
}

type pageData struct {
	Accept   string
	Error    string
	Rows     []preview.Row
	Warnings []string
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageData{})
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.planUploads(w, r)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, pageData{
		Rows:     preview.Rows(plan),
		Warnings: preview.DuplicateWarnings(plan),
	})
}

func (s *server) handleRename(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.planUploads(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	res, err := (&pack.ZipApplier{W: &buf}).Apply(r.Context(), plan)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("rename: pack failed: %v", err)
		s.render(w, http.StatusInternalServerError, pageData{Error: "打包失败，请重试"})
		return
	}
	log.Printf("rename: packed %d files", len(res.Entries))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pack.ArchiveName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// planUploads 读取上传并生成计划；失败时已写好响应，返回 ok=false。
func (s *server) planUploads(w http.ResponseWriter, r *http.Request) ([]domain.PlanEntry, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	uploads, err := readUploads(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.render(w, http.StatusRequestEntityTooLarge, pageData{
				Error: fmt.Sprintf("上传内容超过上限（%s）", humanSize(s.maxBytes)),
			})
			return nil, false
		}
		s.render(w, http.StatusBadRequest, pageData{Error: fmt.Sprintf("无法读取上传内容：%v", err)})
		return nil, false
	}

	plan, err := pack.Plan(uploads)
	if err != nil {
		var ue *pack.UnsupportedError
		switch {
		case errors.Is(err, pack.ErrNothingToDo):
			s.render(w, http.StatusBadRequest, pageData{Error: "请先选择要处理的图片"})
		case errors.As(err, &ue):
			s.render(w, http.StatusBadRequest, pageData{Error: ue.Error()})
		default:
			s.render(w, http.StatusBadRequest, pageData{Error: err.Error()})
		}
		return nil, false
	}
	return plan, true
}

// readUploads 按表单顺序读出所有文件；浏览器在未选择文件时会发送一个文件名为空的部分，这里忽略它。
func readUploads(r *http.Request) ([]pack.Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var out []pack.Upload
	for _, fh := range r.MultipartForm.File[FieldName] {
		if fh.Filename == "" {
			continue
		}
		b, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("%s：%w", fh.Filename, err)
		}
		out = append(out, pack.Upload{Name: fh.Filename, Data: b})
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *server) render(w http.ResponseWriter, code int, d pageData) {
	d.Accept = acceptAttr()
	var buf bytes.Buffer
	if err := s.tpl.Execute(&buf, d); err != nil {
		log.Printf("render: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func acceptAttr() string {
	return strings.Join(scan.UploadExts, ",")
}

func humanSize(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d 字节", n)
}

const pageTpl = `<!doctype html>
<html lang="zh">
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width, initial-scale=1" />
<title>imgseq</title>
<style>
body{font-family:system-ui,-apple-system,Segoe UI,Roboto;max-width:900px;margin:0 auto;padding:1rem}
table{border-collapse:collapse;width:100%;margin-top:1rem}
th,td{border:1px solid #ddd;padding:6px 8px;text-align:left}
th{background:#f6f6f6}
.error{color:#b00020;border:1px solid #f3c2c8;background:#fff5f6;padding:8px;border-radius:6px}
.warn{color:#8a6d00;border:1px solid #f1e0a6;background:#fffbea;padding:8px;border-radius:6px}
.muted{color:#666}
</style>
<h1>imgseq</h1>
<p class="muted">按文件名中的编号（开头数字，或 数字+Ultra）为图片分配三位序号；其余图片按顺序补齐空缺编号。</p>

{{if .Error}}<p class="error" id="error">{{.Error}}</p>{{end}}

<form id="upload" method="post" enctype="multipart/form-data">
  <input type="file" name="files" multiple accept="{{.Accept}}" />
  <button type="submit" formaction="/preview">预览</button>
  <button type="submit" formaction="/rename">改名并下载 zip</button>
</form>

{{if .Warnings}}
<div class="warn" id="warnings">
  <strong>注意：以下编号被多个文件识别到，会用 _1、_2 后缀区分：</strong>
  <ul>{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>
</div>
{{end}}

{{if .Rows}}
<table id="plan">
  <thead><tr><th>original</th><th>detected_id</th><th>final_id</th><th>proposed_name</th></tr></thead>
  <tbody>
  {{range .Rows}}
    <tr><td>{{.Original}}</td><td>{{.DetectedID}}</td><td>{{.FinalID}}</td><td>{{.Proposed}}</td></tr>
  {{end}}
  </tbody>
</table>
<p class="muted">预览不会保存上传内容；确认后请重新选择同一批文件并点击“改名并下载 zip”。</p>
{{end}}
</html>
`
