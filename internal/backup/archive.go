// ABOUTME: Archives exported envelopes to a Sink, optionally zstd-compressed
// ABOUTME: Keys are time-ordered ULIDs so listings sort chronologically

package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
)

// ErrNoSink is returned when archiving is requested but no sink is configured.
var ErrNoSink = errors.New("no backup sink configured")

// MaxDecodedBytes bounds the size of an envelope read from an archive,
// after decompression.
const MaxDecodedBytes = 64 << 20

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("backup: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedBytes))
	if err != nil {
		panic("backup: zstd decoder initialization failed: " + err.Error())
	}
}

// Sink stores archived backups by key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	String() string
}

// Archiver writes envelopes to a sink.
type Archiver struct {
	sink     Sink
	compress bool
	logger   *slog.Logger
}

// NewArchiver returns an archiver. A nil sink yields an archiver whose
// Archive always fails with ErrNoSink.
func NewArchiver(sink Sink, compress bool, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		sink:     sink,
		compress: compress,
		logger:   logger.With("component", "backup"),
	}
}

// Enabled reports whether a sink is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.sink != nil
}

// Archive stores env and returns its key.
func (a *Archiver) Archive(ctx context.Context, env Envelope) (string, error) {
	if !a.Enabled() {
		return "", ErrNoSink
	}

	data, err := env.Encode()
	if err != nil {
		return "", err
	}

	key := path.Join("backups", fmt.Sprintf("backup_%s_%s.json",
		env.CreatedAt.UTC().Format("20060102_150405"), ulid.Make()))
	contentType := "application/json"
	if a.compress {
		data = zstdEncoder.EncodeAll(data, nil)
		key += ".zst"
		contentType = "application/zstd"
	}

	if err := a.sink.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("writing archive to %s: %w", a.sink, err)
	}

	a.logger.Info("backup archived", "sink", a.sink.String(), "key", key, "bytes", len(data))
	return key, nil
}

// Fetch reads and decodes an archived envelope.
func (a *Archiver) Fetch(ctx context.Context, key string) (Envelope, error) {
	if !a.Enabled() {
		return Envelope{}, ErrNoSink
	}
	data, err := a.sink.Get(ctx, key)
	if err != nil {
		return Envelope{}, fmt.Errorf("reading archive %s: %w", key, err)
	}
	plain, err := ReadArchive(data)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(plain)
}

// ReadArchive returns the envelope JSON from either a plain or a
// zstd-compressed archive.
// Either form is rejected past MaxDecodedBytes.
func ReadArchive(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		if len(data) > MaxDecodedBytes {
			return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrInvalidEnvelope, MaxDecodedBytes)
		}
		return data, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return nil, fmt.Errorf("%w: decompressed archive exceeds %d bytes", ErrInvalidEnvelope, MaxDecodedBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decompress: %v", ErrInvalidEnvelope, err)
	}
	return out, nil
}
