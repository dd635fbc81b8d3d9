package client

import (
	"context"
	"testing"

	"mini-dap/codec"
	"mini-dap/loadbalance"
	"mini-dap/message"
	"mini-dap/registry"
	"mini-dap/sim"
)

func benchClient(b *testing.B, ct codec.CodecType) *Client {
	reg := registry.NewStaticRegistry()
	startServer(b, sim.DefaultOptions(), reg)
	return NewClient(reg, &loadbalance.RoundRobinBalancer{}, ct, 8)
}

// Single goroutine, one request at a time.
func BenchmarkSerialData(b *testing.B) {
	cli := benchClient(b, codec.CodecTypeBinary)
	b.Cleanup(func() { _ = cli.Close() })
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cli.Data(ctx, "test.1", "i32, stations"); err != nil {
			b.Fatal(err)
		}
	}
}

// Many goroutines sharing the multiplexed connections.
func BenchmarkConcurrentData(b *testing.B) {
	cli := benchClient(b, codec.CodecTypeBinary)
	b.Cleanup(func() { _ = cli.Close() })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := cli.Data(ctx, "test.1", "i32, stations"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchCodec(b *testing.B, ct codec.CodecType) {
	cdc := codec.GetCodec(ct)
	msg := &message.Message{
		Method:     message.MethodData,
		Dataset:    "test.1",
		Constraint: "i32, stations",
		Payload:    make([]byte, 4096),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(msg)
		var out message.Message
		_ = cdc.Decode(data, &out)
	}
}

func BenchmarkCodecJSON(b *testing.B)   { benchCodec(b, codec.CodecTypeJSON) }
func BenchmarkCodecBinary(b *testing.B) { benchCodec(b, codec.CodecTypeBinary) }
