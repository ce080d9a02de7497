package archive

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// DefaultMaxDecoderMemory is the default zstd decoder memory limit (256MB).
const DefaultMaxDecoderMemory = 256 << 20

// decoderPool manages reusable zstd decoders for Zstandard-compressed entries.
type decoderPool struct {
	pool             sync.Pool
	maxDecoderMemory uint64
}

func newDecoderPool(maxMemory uint64) *decoderPool {
	p := &decoderPool{maxDecoderMemory: maxMemory}
	p.pool.New = func() any {
		dec, err := p.newDecoder(nil)
		if err != nil {
			return nil
		}
		return dec
	}
	return p
}

// get returns a decoder reading from r and a release function that returns
// the decoder to the pool. No release is needed when an error is returned.
func (p *decoderPool) get(r io.Reader) (*zstd.Decoder, func(), error) {
	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		// Pool's New function failed, try directly
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

func (p *decoderPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
	}
	if p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}

// decompressor adapts the pool to the zip.Decompressor signature.
func (p *decoderPool) decompressor() zip.Decompressor {
	return func(r io.Reader) io.ReadCloser {
		dec, release, err := p.get(r)
		if err != nil {
			return &errReadCloser{err: err}
		}
		return &pooledDecoder{dec: dec, release: release}
	}
}

// register installs Zstandard support for both method IDs seen in the wild.
func (p *decoderPool) register(zr *zip.Reader) {
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, p.decompressor())
	zr.RegisterDecompressor(zstd.ZipMethodPKWare, p.decompressor())
}

type pooledDecoder struct {
	dec     *zstd.Decoder
	release func()
	once    sync.Once
	closed  bool
}

func (d *pooledDecoder) Read(p []byte) (int, error) {
	if d.closed {
		return 0, errors.New("archive: read after close")
	}
	return d.dec.Read(p)
}

func (d *pooledDecoder) Close() error {
	d.once.Do(func() {
		d.closed = true
		d.release()
	})
	return nil
}

type errReadCloser struct {
	err error
}

func (e *errReadCloser) Read([]byte) (int, error) { return 0, e.err }
func (e *errReadCloser) Close() error             { return nil }
