package remoteconfig

import (
	"math"
	"strconv"
	"strings"
)

// ParseBool 解析常见的布尔字符串编码，大小写不敏感。
// 第二个返回值为 false 表示无法解析。
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "on", "1":
		return true, true
	case "false", "f", "no", "n", "off", "0":
		return false, true
	}
	return false, false
}

// ParseNumber 以与 locale 无关的方式解析数字 ("1.5"，而非 "1,5")。
// NaN 和 Inf 视为无法解析。
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
