package protocol

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd encoder/decoder pooling, grounded on arloliu/mebo's
// compress/zstd_pure.go: the klauspost/compress/zstd encoder and
// decoder are both designed for reuse after a warmup, so FrameCodec
// never constructs one per call.
var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err) // only fails on invalid static options
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return dec
	},
}

func zstdCompress(dst, src []byte) []byte {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(src, dst)
}

// zstdDecompress decompresses src into a buffer pre-sized to the
// declared uncompressedLen. A declared length above maxSize is refused
// before any allocation; an output longer than maxSize is refused after
// decoding (§4.2 step 4, DecompressionBomb).
func zstdDecompress(src []byte, uncompressedLen, maxSize int) ([]byte, error) {
	if uncompressedLen > maxSize {
		return nil, ErrDecompressionBomb
	}
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)

	dst := make([]byte, 0, uncompressedLen)
	out, err := dec.DecodeAll(src, dst)
	if err != nil {
		return nil, fatal("zstd decode", err)
	}
	if len(out) > maxSize {
		return nil, ErrDecompressionBomb
	}
	return out, nil
}
