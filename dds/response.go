package dds

import (
	"bytes"
	"context"
	"io"

	"mini-dap/dap"
	"mini-dap/xdr"
)

// WriteData encodes a data response: the descriptor of the variables that
// were actually shipped, followed by their values. Variables turned away by
// the evaluator's selector are left out of both. Nothing is written to w
// unless every variable encodes.
func WriteData(ctx context.Context, w io.Writer, d *DDS, ev *Evaluator) (int64, error) {
	var body bytes.Buffer
	enc := xdr.NewEncoder(&body)
	var shipped []dap.Value
	for _, v := range d.Sent() {
		if err := v.Serialize(ctx, ev, enc, true); err != nil {
			return 0, err
		}
		if !ev.Excluded(v) {
			shipped = append(shipped, v)
		}
	}

	head := xdr.NewEncoder(w)
	if err := writeDescriptor(head, d.name, shipped); err != nil {
		return head.Written(), err
	}
	n, err := body.WriteTo(w)
	if err != nil {
		return head.Written() + n, wireErr("write data", err)
	}
	return head.Written() + n, nil
}

// ReadData decodes a response written by WriteData.
func ReadData(r io.Reader, limits xdr.Limits) (*DDS, error) {
	dec := xdr.NewDecoderWithLimits(r, limits)
	d, err := readDescriptor(dec)
	if err != nil {
		return nil, err
	}
	if err := d.ReceiveFrom(dec, false); err != nil {
		return nil, err
	}
	return d, nil
}

// ReadDescriptorWithLimits is ReadDescriptor with explicit decoder limits.
func ReadDescriptorWithLimits(r io.Reader, limits xdr.Limits) (*DDS, error) {
	return readDescriptor(xdr.NewDecoderWithLimits(r, limits))
}
