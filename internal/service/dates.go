package service

import (
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// DayKey 把时间归一成 YYYY-MM-DD 日键
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// Today 返回本地时区下今天的日键
func Today() string {
	return DayKey(time.Now())
}

// NormalizeDayKey 把任意日期表示归一成日键，幂等且总能给出结果
// 带时间分量的串直接截取日期段：存储端会给纯日期回显时间分量，
// 走时区换算反而可能把日界挪到前一天
// 其余格式尽力解析，解析不动时原样返回修剪后的输入
func NormalizeDayKey(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 10 && looksLikeDayKey(s[:10]) {
		if len(s) == 10 || s[10] == ' ' || s[10] == 'T' {
			return s[:10]
		}
	}

	for _, layout := range []string{"2006/01/02", "20060102", "2006-1-2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DayKey(t)
		}
	}
	return s
}

// DayBounds 返回覆盖整天的半开区间 [day, day+1)
// 边界取裸日键：按字符串序比较时它同时罩住裸日键和带时间分量的落库值，
// 补上 "00:00:00" 反而会漏掉恰好等于裸日键的记录
func DayBounds(day string) (start, end string) {
	key := NormalizeDayKey(day)
	t, err := time.Parse(dayLayout, key)
	if err != nil {
		return key, key
	}
	return key, DayKey(t.AddDate(0, 0, 1))
}

func looksLikeDayKey(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if i == 4 || i == 7 {
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ShiftDay 把日键前后平移 n 天，解析不动时原样返回
func ShiftDay(day string, n int) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return day
	}
	return DayKey(t.AddDate(0, 0, n))
}

func daysBetween(from, to string) int {
	a, errA := time.Parse(dayLayout, from)
	b, errB := time.Parse(dayLayout, to)
	if errA != nil || errB != nil || b.Before(a) {
		return 0
	}
	return int(b.Sub(a).Hours()/24) + 1
}
