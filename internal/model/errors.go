package model

import "encoding/json"

// ErrorInfo holds structured failure information for a Video.
type ErrorInfo struct {
	FailedStep string `json:"failed_step"`
	Message    string `json:"message"`
	Fatal      bool   `json:"fatal"`
	FailedAt   string `json:"failed_at"`
}

// ToJSON serializes ErrorInfo to a JSON string.
func (e ErrorInfo) ToJSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// ParseErrorInfo decodes the JSON produced by ToJSON. The second return is
// false for an empty or malformed value.
func ParseErrorInfo(s string) (ErrorInfo, bool) {
	if s == "" {
		return ErrorInfo{}, false
	}
	var e ErrorInfo
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return ErrorInfo{}, false
	}
	return e, true
}
