package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// LockFileName 是目录独占锁文件名（以 '.' 开头，扫描时不会被当成图片）。
const LockFileName = ".imgseq.lock"

// LockedError 表示目录已被另一次执行占用。
type LockedError struct {
	Dir string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("目录正在被另一次重命名占用：%q（若确认没有运行中的任务，请删除 %s）", e.Dir, LockFileName)
}

func IsLocked(err error) bool {
	var e *LockedError
	return errors.As(err, &e)
}

// LockDir 在 dir 下以 O_EXCL 创建锁文件，获得对该目录的独占权；返回的 unlock 删除锁文件。
//
// 同一进程内与跨进程都有效：两次执行不能同时对一个目录做冲突规避与重命名。
func LockDir(dir string) (unlock func(), err error) {
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, &LockedError{Dir: dir}
		}
		return nil, err
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	_ = f.Close()

	return func() { _ = os.Remove(path) }, nil
}
