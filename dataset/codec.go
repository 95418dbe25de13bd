package dataset

import (
	"bytes"
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	secbioauth "github.com/VReyesUOL/SecBioAuth"
	"github.com/VReyesUOL/SecBioAuth/blobstore"
)

// Compression suffixes tried, in order, after the plain blob name.
const (
	SuffixZstd = ".zst"
	SuffixGzip = ".gz"
	SuffixLZ4  = ".lz4"
)

var suffixes = []string{"", SuffixZstd, SuffixGzip, SuffixLZ4}

// readBlob returns the decompressed content of the first existing blob among
// name, name.zst, name.gz and name.lz4.
func readBlob(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	for _, suffix := range suffixes {
		data, err := blobstore.ReadAll(ctx, store, name+suffix)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if data, err = decompress(suffix, data); err != nil {
			return nil, errors.Wrapf(secbioauth.ErrDataIntegrity, "decompress %s%s: %v", name, suffix, err)
		}
		return data, nil
	}
	return nil, errors.Wrap(blobstore.ErrNotFound, name)
}

func decompress(suffix string, data []byte) ([]byte, error) {
	switch suffix {
	case SuffixZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case SuffixGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case SuffixLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

// Compress encodes data for the given suffix, as expected by the loader.
// It is used to prepare compressed datasets.
func Compress(suffix string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch suffix {
	case SuffixZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case SuffixGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case SuffixLZ4:
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "":
		return data, nil
	default:
		return nil, errors.Wrapf(secbioauth.ErrConfiguration, "unknown compression suffix %q", suffix)
	}
	return buf.Bytes(), nil
}
