package logging

import (
	"bytes"
	"fmt"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

type BitflagChoice struct {
	Mask   int
	Values map[int]string
}

type BitflagValue struct {
	Value int
	Name  string
}

// A BitflagFormatter renders an integer flag word as NAME|NAME|rest.
// Each choice masks out a field holding exactly one named value; the
// remaining flags are matched bit by bit.
type BitflagFormatter struct {
	Choices []BitflagChoice
	Flags   []BitflagValue
}

func (f *BitflagFormatter) Format(value int) string {
	var buf bytes.Buffer
	for _, choice := range f.Choices {
		masked := value & choice.Mask
		value ^= masked
		if got, ok := choice.Values[masked]; ok {
			if buf.Len() > 0 {
				buf.WriteString("|")
			}
			buf.WriteString(got)
		} else {
			if buf.Len() > 0 {
				buf.WriteString("|")
			}
			fmt.Fprintf(&buf, "%d", masked)
		}
	}
	for _, choice := range f.Flags {
		if value&choice.Value == choice.Value {
			value ^= choice.Value
			if buf.Len() > 0 {
				buf.WriteString("|")
			}
			buf.WriteString(choice.Name)
		}
	}
	if value != 0 {
		if buf.Len() > 0 {
			buf.WriteString("|")
		}
		fmt.Fprintf(&buf, "%d", value)
	}
	return buf.String()
}

// OpenFlags renders guest open(2) flags.
var OpenFlags = &BitflagFormatter{
	Choices: []BitflagChoice{
		{
			Mask: syscallabi.O_ACCMODE,
			Values: map[int]string{
				syscallabi.O_RDONLY: "O_RDONLY",
				syscallabi.O_WRONLY: "O_WRONLY",
				syscallabi.O_RDWR:   "O_RDWR",
			},
		},
	},
	Flags: []BitflagValue{
		{Value: syscallabi.O_APPEND, Name: "O_APPEND"},
		{Value: syscallabi.O_CREAT, Name: "O_CREAT"},
		{Value: syscallabi.O_TRUNC, Name: "O_TRUNC"},
		{Value: syscallabi.O_EXCL, Name: "O_EXCL"},
		{Value: syscallabi.O_NONBLOCK, Name: "O_NONBLOCK"},
		{Value: syscallabi.O_NOCTTY, Name: "O_NOCTTY"},
		{Value: syscallabi.O_CLOEXEC, Name: "O_CLOEXEC"},
	},
}

// WaitOptions renders guest waitpid(2) options.
var WaitOptions = &BitflagFormatter{
	Flags: []BitflagValue{
		{Value: syscallabi.WNOHANG, Name: "WNOHANG"},
	},
}
