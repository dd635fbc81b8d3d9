package server

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mini-dap/dap"
	"mini-dap/dds"
	"mini-dap/message"
)

// Version is answered to version requests.
const Version = "mini-dap/0.1"

var ErrUnknownMethod = errors.New("unknown method")

// dispatch is the core handler wrapped by the middleware chain. It answers
// version, dds and data requests against the catalog.
func (svr *Server) dispatch(ctx context.Context, req *message.Message) *message.Message {
	var (
		payload []byte
		err     error
	)
	switch req.Method {
	case message.MethodVersion:
		payload = []byte(Version)
	case message.MethodDDS:
		payload, err = svr.describe(req)
	case message.MethodData:
		payload, err = svr.data(ctx, req)
	default:
		err = errors.Wrapf(ErrUnknownMethod, "%q", req.Method)
	}
	if err != nil {
		kind := classify(err)
		svr.logFailure(req, kind, err)
		return message.Failure(req, kind, err.Error())
	}
	return &message.Message{Method: req.Method, Dataset: req.Dataset, Payload: payload}
}

// prepare looks the dataset up and applies the request's projection.
func (svr *Server) prepare(req *message.Message) (*dds.DDS, error) {
	d, err := svr.catalog.Lookup(req.Dataset)
	if err != nil {
		return nil, err
	}
	if err := d.Project(dds.ParseConstraint(req.Constraint)); err != nil {
		return nil, err
	}
	return d, nil
}

func (svr *Server) describe(req *message.Message) ([]byte, error) {
	d, err := svr.prepare(req)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := dds.WriteDescriptor(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (svr *Server) data(ctx context.Context, req *message.Message) ([]byte, error) {
	d, err := svr.prepare(req)
	if err != nil {
		return nil, err
	}
	ev := dds.NewEvaluator(d.Name(), dds.WithBudget(svr.budget), dds.WithClock(svr.clock))
	var buf bytes.Buffer
	if _, err := dds.WriteData(ctx, &buf, d, ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// classify maps a handler error to the kind reported to the client.
func classify(err error) message.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, dap.ErrTimeout):
		return message.KindTimeout
	case errors.Is(err, ErrUnknownDataset), errors.Is(err, dds.ErrUnknownVariable):
		return message.KindNotFound
	case errors.Is(err, ErrUnknownMethod):
		return message.KindBadRequest
	case dap.IsTransmission(err):
		return message.KindTransmission
	}
	return message.KindInternal
}

// logFailure records the errors that need a stack trace to be diagnosed.
// Request-level failures are logged by the logging middleware.
func (svr *Server) logFailure(req *message.Message, kind message.ErrorKind, err error) {
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("dataset", req.Dataset),
		zap.Error(err),
	}
	switch kind {
	case message.KindInternal:
		svr.log.Error("internal error", fields...)
	case message.KindTransmission:
		svr.log.Warn("transmission error", fields...)
	}
}
