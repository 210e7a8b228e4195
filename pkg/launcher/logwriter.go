package launcher

import (
	"bytes"
	"log"
	"regexp"
	"strings"
)

// LineSink receives one backend output line at a time. stream is
// "stdout" or "stderr". Lines arrive with terminal control sequences
// stripped and line endings normalized; they never affect control flow.
type LineSink func(port int, stream, line string)

// defaultLineSink logs backend output with the attempted port as prefix
func defaultLineSink(port int, stream, line string) {
	log.Printf("[backend:%d] %s: %s", port, stream, line)
}

// ansiEscape matches CSI and simple ESC sequences emitted by uvicorn and
// friends when they think they are writing to a terminal.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b[@-_]`)

// lineWriter is an io.Writer that buffers child process output into
// whole lines before forwarding them to a LineSink.
type lineWriter struct {
	port   int
	stream string
	sink   LineSink
	buf    bytes.Buffer
}

func newLineWriter(port int, stream string, sink LineSink) *lineWriter {
	return &lineWriter{
		port:   port,
		stream: stream,
		sink:   sink,
	}
}

// Write implements io.Writer. Partial lines are held until their newline
// arrives; exec.Cmd may split writes anywhere.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)

	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// No complete line yet, keep the remainder buffered
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}

	return len(p), nil
}

// Flush forwards any buffered partial line. Called after the process exits.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = ansiEscape.ReplaceAllString(line, "")
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	w.sink(w.port, w.stream, line)
}
