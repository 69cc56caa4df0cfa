package ledger

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return encoder, decoder, codecErr
}

// compressLog returns nil for an empty log so the column stays NULL.
func compressLog(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	enc, _, err := codec()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll([]byte(text), nil), nil
}

func decompressLog(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	_, dec, err := codec()
	if err != nil {
		return "", fmt.Errorf("zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress log: %w", err)
	}
	return string(out), nil
}
