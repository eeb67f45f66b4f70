package guard

import (
	"github.com/klauspost/compress/zstd"
)

type zstdCompressor struct {
	compressor *zstd.Encoder
	decomp     *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {

	// The nil argument here means only do []byte compressions.
	compressor, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decomp, err := zstd.NewReader(nil)
	if err != nil {
		compressor.Close()
		return nil, err
	}
	return &zstdCompressor{
		compressor: compressor,
		decomp:     decomp,
	}, nil
}

// Close releases held resources, important for cleanup.
func (c *zstdCompressor) Close() {
	c.compressor.Close()
	c.decomp.Close()
}

func (c *zstdCompressor) Decompress(src []byte) ([]byte, error) {
	return c.decomp.DecodeAll(src, nil)
}

func (c *zstdCompressor) Compress(src []byte) []byte {
	return c.compressor.EncodeAll(src, nil)
}
