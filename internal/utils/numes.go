package utils

import (
	"regexp"
	"strconv"
	"strings"
)

var rxKeepNums = regexp.MustCompile(`[^\d\.,\-]`)

// ParseFloatES parses spreadsheet numbers written the Spanish way:
// "1.234,50", "25,00", "1 234,5", "€ 12,30". Plain "12.5" still works.
// A lone dot followed by exactly three digits after a non-zero integer part
// is a thousands separator.
func ParseFloatES(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer("\u00A0", "", "\u202F", "", " ", "", "\t", "").Replace(s)
	s = rxKeepNums.ReplaceAllString(s, "")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || isThousandsGroup(s[:lastDot], s[lastDot+1:]) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	if s == "" || s == "-" || s == "." {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func isThousandsGroup(head, tail string) bool {
	head = strings.TrimPrefix(head, "-")
	if len(tail) != 3 || head == "" || head == "0" {
		return false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
