package log

import "io"

// MultiWriter copies each write to every added writer.
type MultiWriter struct {
	writers []io.Writer
}

// Write keeps going past failing writers and returns the last error.
func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// NewMultiWriter returns an empty MultiWriter.
func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}
