package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/maruel/photometry/internal/dyntable"
	"github.com/zeebo/blake3"
)

// ErrCorrupt is returned when a blob fails structural or integrity checks.
var ErrCorrupt = errors.New("corrupt document blob")

const (
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 8 + 32
)

var magic = [4]byte{'N', 'W', 'B', 'P'}

// payloadKey is the BLAKE3 key of the payload digest: the ASCII domain name
// zero-padded to 32 bytes.
var payloadKey = [32]byte{
	'p', 'h', 'o', 't', 'o', 'm', 'e', 't', 'r', 'y', '.', 's', 't', 'o', 'r', 'e',
	'.', 'p', 'a', 'y', 'l', 'o', 'a', 'd',
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Column defaults are decoded into any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

func digest(payload []byte) [32]byte {
	h, err := blake3.NewKeyed(payloadKey[:])
	if err != nil {
		panic("store: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// seal frames payload into a blob.
func seal(payload []byte, c Compression) ([]byte, error) {
	body, used, err := compress(payload, c)
	if err != nil {
		return nil, err
	}
	sum := digest(payload)
	out := make([]byte, 0, headerSize+len(body))
	out = append(out, magic[:]...)
	out = append(out, formatVersion, byte(used))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(payload)))
	out = append(out, sum[:]...)
	return append(out, body...), nil
}

// open verifies a blob and returns its uncompressed payload.
func open(blob []byte) ([]byte, Compression, error) {
	if len(blob) < headerSize {
		return nil, 0, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(blob))
	}
	if !bytes.Equal(blob[:4], magic[:]) {
		return nil, 0, fmt.Errorf("%w: bad magic %q", ErrCorrupt, blob[:4])
	}
	if v := blob[4]; v != formatVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	c := Compression(blob[5])
	size := binary.LittleEndian.Uint64(blob[6:14])
	if size > maxPayload {
		return nil, 0, fmt.Errorf("%w: payload size %d", ErrCorrupt, size)
	}
	var want [32]byte
	copy(want[:], blob[14:headerSize])
	payload, err := decompress(blob[headerSize:], c, int(size))
	if err != nil {
		return nil, 0, err
	}
	if digest(payload) != want {
		return nil, 0, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return payload, c, nil
}

// Options configures encoding and decoding. The zero value stores the
// payload uncompressed and logs to slog.Default().
type Options struct {
	Compression Compression
	Logger      *slog.Logger
	// Warn receives every warning raised while encoding or decoding.
	Warn dyntable.WarnFunc
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) compression() Compression {
	if o == nil {
		return CompressionNone
	}
	return o.Compression
}

func (o *Options) tableOptions() []dyntable.Option {
	opts := []dyntable.Option{dyntable.WithLogger(o.logger())}
	if o != nil && o.Warn != nil {
		opts = append(opts, dyntable.WithWarnFunc(o.Warn))
	}
	return opts
}

func (o *Options) emit(msg string, w *dyntable.Warning) {
	o.logger().Warn(msg, "warning", w)
	if o != nil && o.Warn != nil {
		o.Warn(w)
	}
}
