package benchmark

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/yndnr/authcore-go/internal/core/service"
	"github.com/yndnr/authcore-go/internal/storage"
	"github.com/yndnr/authcore-go/internal/storage/memory"
	"github.com/yndnr/authcore-go/pkg/token"
)

// BenchmarkTokenGenerate benchmarks random token generation.
func BenchmarkTokenGenerate(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := token.Generate(); err != nil {
			b.Fatalf("Generate failed: %v", err)
		}
	}
}

// BenchmarkTokenDoubleHash benchmarks the stored refresh token hash.
func BenchmarkTokenDoubleHash(b *testing.B) {
	tok, _ := token.Generate()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		token.DoubleHash(tok)
	}
}

// BenchmarkRefreshSealer benchmarks sealing and opening refresh tokens.
func BenchmarkRefreshSealer(b *testing.B) {
	e := newEnv(b, memory.New())
	ctx := context.Background()
	payload := service.RefreshPayload{SessionHandle: "bench-handle", UserID: "bench-user"}

	b.Run("seal", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := e.sealer.Seal(ctx, e.tenant, payload); err != nil {
				b.Fatalf("Seal failed: %v", err)
			}
		}
	})

	b.Run("open", func(b *testing.B) {
		sealed, err := e.sealer.Seal(ctx, e.tenant, payload)
		if err != nil {
			b.Fatalf("Seal failed: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := e.sealer.Open(ctx, e.tenant, sealed); err != nil {
				b.Fatalf("Open failed: %v", err)
			}
		}
	})
}

// BenchmarkEncryptedBackup benchmarks the encrypted backup stream. Key
// derivation runs once per iteration, as it does per backup.
func BenchmarkEncryptedBackup(b *testing.B) {
	plain := bytes.Repeat([]byte("badger backup row "), 64*1024)
	passphrase := []byte("benchmark passphrase")

	b.SetBytes(int64(len(plain)))
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w, err := storage.NewEncryptWriter(io.Discard, passphrase)
		if err != nil {
			b.Fatalf("NewEncryptWriter failed: %v", err)
		}
		if _, err := w.Write(plain); err != nil {
			b.Fatalf("Write failed: %v", err)
		}
		if err := w.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}
	}
}
