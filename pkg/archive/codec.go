package archive

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// CodecOptions tunes the compression stream. A zero Level selects the strongest compression the codec offers.
type CodecOptions struct {
	Level   int
	Threads int
}

type levelRange struct {
	min, max int
}

var levelRanges = map[Format]levelRange{
	FormatXz:     {1, 9},
	FormatGzip:   {1, 9},
	FormatZstd:   {1, 22},
	FormatBrotli: {1, 11},
	FormatBzip2:  {1, 9},
	FormatLz4:    {1, 9},
}

// xz presets 1-9 roughly follow the dictionary sizes used by the xz utility
var xzDictSizes = []int{1 << 18, 1 << 20, 1 << 21, 1 << 22, 1 << 22, 1 << 23, 1 << 23, 1 << 24, 1 << 25, 1 << 26}

var lz4Levels = []lz4.CompressionLevel{lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9}

// LevelRange returns the valid compression levels for the given format. Formats without levels return 0, 0.
func LevelRange(format Format) (int, int) {
	r, ok := levelRanges[format]
	if !ok {
		return 0, 0
	}
	return r.min, r.max
}

func clampLevel(format Format, level int) int {
	r, ok := levelRanges[format]
	if !ok {
		return 0
	}

	if level <= 0 || level > r.max {
		return r.max
	}
	if level < r.min {
		return r.min
	}
	return level
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewEncoder wraps w in a compression stream for format. Closing the returned writer finishes the stream
// but leaves w open.
func NewEncoder(format Format, w io.Writer, opts CodecOptions) (io.WriteCloser, error) {
	level := clampLevel(format, opts.Level)

	switch format {
	case FormatTar:
		return nopWriteCloser{w}, nil
	case FormatXz:
		cfg := xz.WriterConfig{
			DictCap:  xzDictSizes[level],
			CheckSum: xz.CRC64,
		}
		enc, err := cfg.NewWriter(w)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to create xz encoder")
		}
		return enc, nil
	case FormatGzip:
		enc, err := pgzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to create gzip encoder")
		}
		if opts.Threads > 0 {
			err = enc.SetConcurrency(1<<20, opts.Threads)
			if err != nil {
				return nil, eris.Wrap(err, "Failed to configure gzip concurrency")
			}
		}
		return enc, nil
	case FormatZstd:
		zopts := []zstd.EOption{zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level))}
		if opts.Threads > 0 {
			zopts = append(zopts, zstd.WithEncoderConcurrency(opts.Threads))
		}
		enc, err := zstd.NewWriter(w, zopts...)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to create zstd encoder")
		}
		return enc, nil
	case FormatBrotli:
		return brotli.NewWriterLevel(w, level), nil
	case FormatBzip2:
		enc, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: level})
		if err != nil {
			return nil, eris.Wrap(err, "Failed to create bzip2 encoder")
		}
		return enc, nil
	case FormatLz4:
		enc := lz4.NewWriter(w)
		err := enc.Apply(lz4.CompressionLevelOption(lz4Levels[level]))
		if err != nil {
			return nil, eris.Wrap(err, "Failed to configure lz4 encoder")
		}
		return enc, nil
	}

	return nil, UnknownFormat{Name: string(format)}
}

// NewDecoder wraps r in a decompression stream for format. Closing the returned reader releases the decoder's
// resources but leaves r open.
func NewDecoder(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatXz:
		dec, err := xz.NewReader(r)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to open xz stream")
		}
		return io.NopCloser(dec), nil
	case FormatGzip:
		dec, err := pgzip.NewReader(r)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to open gzip stream")
		}
		return dec, nil
	case FormatZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to create zstd decoder")
		}
		return dec.IOReadCloser(), nil
	case FormatBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case FormatBzip2:
		dec, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, eris.Wrap(err, "Failed to open bzip2 stream")
		}
		return dec, nil
	case FormatLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}

	return nil, UnknownFormat{Name: string(format)}
}
