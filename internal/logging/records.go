package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"
)

// A Record is one raw JSON log line as written by New.
type Record struct {
	Time  time.Time  `json:"time"`
	Level slog.Level `json:"level"`
	Msg   string     `json:"msg"`
	Pid   int        `json:"pid"`
	Tid   int        `json:"tid"`

	// Syscall trace fields.
	Call   string `json:"call"`
	Result int    `json:"result"`
	Errno  string `json:"errno"`
}

// ParseRecords parses newline-separated raw JSON records, skipping lines
// that do not parse.
func ParseRecords(logs []byte) []*Record {
	var out []*Record
	for _, line := range bytes.Split(logs, []byte("\n")) {
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out
}
