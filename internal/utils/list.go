package utils

import "strings"

func SliceToString(slice []string) string {
	return strings.Join(slice, ",")
}

func StringToSlice(str string) []string {
	if str == "" {
		return []string{}
	}
	return strings.Split(str, ",")
}
