package common

import "regexp"

// CompileRegex compiles a rule pattern. Unless caseSensitive is set the
// pattern is made case-insensitive. ok is false for a malformed pattern.
func CompileRegex(pattern string, caseSensitive bool) (*regexp.Regexp, bool) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	return re, true
}
