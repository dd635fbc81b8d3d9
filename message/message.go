// Package message defines the envelope exchanged between dap clients and servers.
//
// Message is the "envelope" for every request. It gets serialized by the codec layer
// and wrapped in a protocol frame for transmission over TCP.
package message

// Request methods understood by the server.
const (
	MethodVersion = "version" // Payload: server version string
	MethodDDS     = "dds"     // Payload: binary descriptor of the constrained dataset
	MethodData    = "data"    // Payload: descriptor followed by the encoded values
)

// ErrorKind tells the client which class of failure ended a request, so it can
// rebuild a typed error instead of matching on error text.
type ErrorKind uint8

const (
	KindNone         ErrorKind = iota
	KindInternal               // Broken invariant inside the server (a bug)
	KindTransmission           // Encoding or I/O failure while producing the payload
	KindTimeout                // Request budget or deadline exceeded
	KindNotFound               // Unknown dataset or variable
	KindBadRequest             // Malformed request (unknown method, bad constraint)
	KindUnavailable            // Rate limited or connection lost; safe to retry
)

var kindNames = [...]string{
	KindNone:         "none",
	KindInternal:     "internal",
	KindTransmission: "transmission",
	KindTimeout:      "timeout",
	KindNotFound:     "not_found",
	KindBadRequest:   "bad_request",
	KindUnavailable:  "unavailable",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Retryable reports whether the same request may succeed when sent again.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindUnavailable
}

// Message carries the data for a single request or response.
//
//   - On request:  Method and Dataset are set, Constraint optionally projects variables.
//   - On response: Payload contains the result, Error and ErrorKind are set if the call failed.
type Message struct {
	Method     string    `json:"method"`
	Dataset    string    `json:"dataset,omitempty"`
	Constraint string    `json:"constraint,omitempty"` // Comma separated variable paths, e.g. "a, s.b"
	Error      string    `json:"error,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`
}

// Failure builds a response that reports err with the given kind.
func Failure(req *Message, kind ErrorKind, err string) *Message {
	resp := &Message{Error: err, ErrorKind: kind}
	if req != nil {
		resp.Method = req.Method
		resp.Dataset = req.Dataset
	}
	return resp
}

// Failed reports whether the message carries an error.
func (m *Message) Failed() bool {
	return m.Error != "" || m.ErrorKind != KindNone
}
