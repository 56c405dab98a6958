package vlog

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Formatter renders and flushes one log line. Implementations are always
// called with the package-global mutex held, so they need no locking of
// their own.
type Formatter interface {
	WriteFlush(pkg string, lvl Level, txt string)
	Flush()
}

type textFormatter struct {
	w *bufio.Writer
}

// NewTextFormatter returns a Formatter that writes "<time> <level> | pkg: txt"
// lines, one per call.
func NewTextFormatter(w io.Writer) Formatter {
	return &textFormatter{w: bufio.NewWriter(w)}
}

func (ft *textFormatter) WriteFlush(pkg string, lvl Level, txt string) {
	ft.w.WriteString(time.Now().String()[:26])
	ft.w.WriteString(" " + lvl.String() + " | ")
	if pkg != "" {
		ft.w.WriteString(pkg + ": ")
	}
	ft.w.WriteString(txt)
	if !strings.HasSuffix(txt, "\n") {
		ft.w.WriteString("\n")
	}
	ft.w.Flush()
}

func (ft *textFormatter) Flush() { ft.w.Flush() }

type jsonFormatter struct {
	w *bufio.Writer
}

// NewJSONFormatter returns a Formatter that writes one JSON object per log
// line, for ingestion by external log collectors.
func NewJSONFormatter(w io.Writer) Formatter {
	return &jsonFormatter{w: bufio.NewWriter(w)}
}

type jsonLine struct {
	Pkg   string `json:"pkg"`
	Level string `json:"level"`
	Time  string `json:"time"`
	Log   string `json:"log"`
}

func (ft *jsonFormatter) WriteFlush(pkg string, lvl Level, txt string) {
	json.NewEncoder(ft.w).Encode(jsonLine{
		Pkg:   pkg,
		Level: lvl.String(),
		Time:  time.Now().String()[:26],
		Log:   txt,
	})
	ft.w.Flush()
}

func (ft *jsonFormatter) Flush() { ft.w.Flush() }
