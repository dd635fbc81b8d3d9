// Package sim provides synthetic data sources and demo datasets for the
// server. Every variable is filled with a fixed test value, or with a
// per-variable series when Series is set.
package sim

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Options tune a synthetic dataset. They are decoded from the free-form
// options table of a dataset entry in the server configuration.
type Options struct {
	// Sleep delays every read, to exercise timeouts.
	Sleep time.Duration `mapstructure:"sleep"`
	// Series makes successive reads of a variable return different values.
	Series bool `mapstructure:"series"`
	// Length is used for lists whose length is not known before reading.
	Length int `mapstructure:"length"`
	// Rows is the number of instances produced for each sequence.
	Rows int `mapstructure:"rows"`
}

func DefaultOptions() Options {
	return Options{Length: 4, Rows: 5}
}

// DecodeOptions applies raw on top of DefaultOptions. Unknown keys are
// rejected.
func DecodeOptions(raw map[string]any) (Options, error) {
	opts := DefaultOptions()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return Options{}, errors.WithStack(err)
	}
	if err := dec.Decode(raw); err != nil {
		return Options{}, errors.Wrap(err, "decode dataset options")
	}
	if opts.Sleep < 0 || opts.Length < 0 || opts.Rows < 0 {
		return Options{}, errors.Errorf("dataset options must not be negative: %+v", opts)
	}
	return opts, nil
}
