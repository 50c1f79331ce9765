package domain

import "strconv"

// ID 是规范化的十进制编号：只含 ASCII 数字且没有前导零（零记为 "0"）。
// 用字符串保存，长度不受 int 限制。
type ID string

// IDFromInt 把非负整数转成 ID。
func IDFromInt(n int) ID {
	return ID(strconv.Itoa(n))
}

// Less 按数值比较两个 ID。
func (id ID) Less(o ID) bool {
	if len(id) != len(o) {
		return len(id) < len(o)
	}
	return id < o
}
