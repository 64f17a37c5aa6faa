package writer

// Sink accepts one recovered buffer. FileWriter and MemWriter both satisfy it.
type Sink interface {
	WriteHive(buf []byte) error
}

// MemWriter captures recovered bytes in memory, for tests and dry runs.
type MemWriter struct {
	Buf []byte
}

// WriteHive stores a copy of the provided buffer.
func (w *MemWriter) WriteHive(buf []byte) error {
	w.Buf = append(w.Buf[:0], buf...)
	return nil
}
