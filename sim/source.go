package sim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mini-dap/dap"
)

// Fixed values returned when Series is off.
const (
	ByteValue    uint8   = 255
	Int16Value   int16   = 32000
	UInt16Value  uint16  = 64000
	Int32Value   int32   = 123456789
	UInt32Value  uint32  = 0xf0000000
	Float32Value float32 = 5.7
	Float64Value float64 = 99.999
	URLValue             = "http://dcz.gso.uri.edu/avhrr-archive/archive.html"
)

var ErrUnsupported = errors.New("variable type not supported by the synthetic source")

// Source fills variables with synthetic values. One Source may serve many
// requests concurrently; series state is kept per variable path.
type Source struct {
	opts  Options
	log   *zap.Logger
	clock clock.Clock

	mu     sync.Mutex
	counts map[string]int64
	floats map[string]float64
}

func NewSource(opts Options, log *zap.Logger) *Source {
	return &Source{
		opts:   opts,
		log:    log,
		clock:  clock.New(),
		counts: make(map[string]int64),
		floats: make(map[string]float64),
	}
}

func (s *Source) Read(ctx context.Context, dataset string, v dap.Value) error {
	if s.opts.Sleep > 0 {
		t := s.clock.Timer(s.opts.Sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	path := dap.Path(v)
	s.log.Debug("synthetic read", zap.String("dataset", dataset), zap.String("var", path))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fill(path, v)
}

func (s *Source) fill(path string, v dap.Value) error {
	switch x := v.(type) {
	case *dap.Byte:
		x.SetValue(uint8(s.integer(path, int64(ByteValue))))
	case *dap.Int16:
		x.SetValue(int16(s.integer(path, int64(Int16Value))))
	case *dap.UInt16:
		x.SetValue(uint16(s.integer(path, int64(UInt16Value))))
	case *dap.Int32:
		x.SetValue(int32(s.integer(path, int64(Int32Value))))
	case *dap.UInt32:
		x.SetValue(uint32(s.integer(path, int64(UInt32Value))))
	case *dap.Float32:
		x.SetValue(float32(s.float(path, float64(Float32Value))))
	case *dap.Float64:
		x.SetValue(s.float(path, Float64Value))
	case *dap.URL:
		x.SetText(URLValue)
	case *dap.Str:
		x.SetText(fmt.Sprintf("Silly test string: %d", s.integer(path, 1)))
	case *dap.Array:
		return s.fillVector(path, &x.Vector)
	case *dap.List:
		return s.fillVector(path, &x.Vector)
	case *dap.Structure:
		for _, f := range x.Vars() {
			if err := s.fill(path+"."+f.Name(), f); err != nil {
				return err
			}
		}
	case *dap.Sequence:
		x.ResetRows()
		cols := x.Vars()
		for r := 0; r < s.opts.Rows; r++ {
			row := make([]dap.Value, len(cols))
			for j, col := range cols {
				c := col.Duplicate()
				if err := s.fill(path+"."+col.Name(), c); err != nil {
					return err
				}
				row[j] = c
			}
			if err := x.AppendRow(row...); err != nil {
				return err
			}
		}
	case *dap.Grid:
		if a := x.Array(); a != nil {
			if err := s.fill(path+"."+a.Name(), a); err != nil {
				return err
			}
		}
		for _, m := range x.Maps() {
			if err := s.fill(path+"."+m.Name(), m); err != nil {
				return err
			}
		}
	default:
		return errors.Wrapf(ErrUnsupported, "%s %s", v.Type(), path)
	}
	return nil
}

// fillVector loads every element with successive values for path.
func (s *Source) fillVector(path string, vec *dap.Vector) error {
	proto := vec.Prototype()
	if proto == nil {
		return errors.Wrapf(ErrUnsupported, "vector %s without prototype", path)
	}
	n := vec.Length()
	if n < 0 {
		n = s.opts.Length
		vec.SetLength(n)
	}

	switch proto.Type().Class() {
	case dap.ClassNumeric:
		w := proto.Width()
		buf := make([]byte, n*w)
		e := proto.Duplicate()
		for i := 0; i < n; i++ {
			if err := s.fill(path, e); err != nil {
				return err
			}
			if _, err := e.EncodeInto(buf[i*w:]); err != nil {
				return err
			}
		}
		_, err := vec.DecodeFrom(buf)
		return err
	case dap.ClassText:
		strs := make([]string, n)
		e := proto.Duplicate()
		t, ok := e.(interface{ Text() string })
		if !ok {
			return errors.Wrapf(ErrUnsupported, "text prototype %T", e)
		}
		for i := range strs {
			if err := s.fill(path, e); err != nil {
				return err
			}
			strs[i] = t.Text()
		}
		return vec.CopyIn(strs)
	default:
		for i := 0; i < n; i++ {
			e := proto.Duplicate()
			if err := s.fill(path, e); err != nil {
				return err
			}
			if err := vec.Assign(i, e); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Source) integer(path string, fixed int64) int64 {
	if !s.opts.Series {
		return fixed
	}
	s.counts[path]++
	return s.counts[path]
}

func (s *Source) float(path string, fixed float64) float64 {
	if !s.opts.Series {
		return fixed
	}
	next := 1000*math.Cos(s.floats[path]) + 0.01
	s.floats[path] = next
	return next
}
