// Package ident 从图片文件名（不含扩展名）中识别数字编号。
package ident

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/John-Robertt/imgseq/internal/domain"
)

// 规则按优先级：
// 1) stem 以十进制数字开头：取开头的连续数字（任意 Unicode 十进制数字，例如全角 "１２"）
// 2) 否则取最左侧“紧贴 Ultra 的连续 ASCII 数字”（Ultra 不区分大小写，数字与 Ultra 之间不允许分隔符）
var (
	leadingRE = regexp.MustCompile(`^(\p{Nd}+)`)
	ultraRE   = regexp.MustCompile(`([0-9]+)(?i:ultra)`)
)

// Detect 返回 stem 中识别到的编号；未识别时 ok=false。
//
// 该函数对任意输入都不会失败。编号按数值规范化（去掉前导零，转成 ASCII），长度不受 int 限制。
func Detect(stem string) (id domain.ID, ok bool) {
	if m := leadingRE.FindStringSubmatch(stem); m != nil {
		return normalize(m[1]), true
	}
	if m := ultraRE.FindStringSubmatch(stem); m != nil {
		return normalize(m[1]), true
	}
	return "", false
}

func normalize(digits string) domain.ID {
	var b strings.Builder
	b.Grow(len(digits))
	for _, r := range digits {
		b.WriteByte(byte('0' + digitValue(r)))
	}
	s := strings.TrimLeft(b.String(), "0")
	if s == "" {
		s = "0"
	}
	return domain.ID(s)
}

// digitValue 返回十进制数字字符 r 的数值。
//
// Unicode 的十进制数字总是以 0..9 连续十个为一组编码，相邻的组首尾相接，
// 所以从所在连续区间的起点算偏移，再对 10 取模即可。
func digitValue(r rune) int {
	if r >= '0' && r <= '9' {
		return int(r - '0')
	}
	start := r
	for unicode.IsDigit(start - 1) {
		start--
	}
	return int(r-start) % 10
}
