package fingerprint

import (
	"regexp"
	"strings"
)

// errorTypePatterns is checked in order; the first match wins. More specific
// runtime errors come before the coarse build/compile buckets.
var errorTypePatterns = []struct {
	re        *regexp.Regexp
	errorType string
}{
	{regexp.MustCompile(`(?i)TypeError`), "TypeError"},
	{regexp.MustCompile(`(?i)ReferenceError`), "ReferenceError"},
	{regexp.MustCompile(`(?i)SyntaxError`), "SyntaxError"},
	{regexp.MustCompile(`(?i)ImportError`), "ImportError"},
	{regexp.MustCompile(`(?i)ModuleNotFoundError`), "ModuleNotFoundError"},
	{regexp.MustCompile(`(?i)KeyError`), "KeyError"},
	{regexp.MustCompile(`(?i)ValueError`), "ValueError"},
	{regexp.MustCompile(`(?i)AttributeError`), "AttributeError"},
	{regexp.MustCompile(`(?i)FileNotFoundError`), "FileNotFoundError"},
	{regexp.MustCompile(`(?i)ConnectionError`), "ConnectionError"},
	{regexp.MustCompile(`(?i)TimeoutError`), "TimeoutError"},
	{regexp.MustCompile(`(?i)PermissionError`), "PermissionError"},
	{regexp.MustCompile(`(?i)ERESOLVE`), "ERESOLVE"},
	{regexp.MustCompile(`(?i)ENOENT`), "ENOENT"},
	{regexp.MustCompile(`(?i)EACCES`), "EACCES"},
	{regexp.MustCompile(`(?i)ERR_MODULE_NOT_FOUND`), "ERR_MODULE_NOT_FOUND"},
	{regexp.MustCompile(`(?i)NullPointerException`), "NullPointerException"},
	{regexp.MustCompile(`(?i)ClassNotFoundException`), "ClassNotFoundException"},
	{regexp.MustCompile(`(?i)segmentation fault`), "SegmentationFault"},
	{regexp.MustCompile(`(?i)compilation error`), "CompilationError"},
	{regexp.MustCompile(`(?i)build error`), "BuildError"},
}

// DetectErrorType classifies raw error text into a known error type.
// Unrecognized text falls back to GenericError, GenericException, or Unknown.
func DetectErrorType(text string) string {
	for _, p := range errorTypePatterns {
		if p.re.MatchString(text) {
			return p.errorType
		}
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "error") {
		return "GenericError"
	}
	if strings.Contains(lower, "exception") {
		return "GenericException"
	}
	return "Unknown"
}
