package router

import "strings"

// Tokenize splits a URL path into its non-empty '/'-delimited segments.
// Leading, trailing and repeated slashes produce no segments, so "" and "///"
// both yield an empty slice.
func Tokenize(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}
