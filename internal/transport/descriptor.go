// Package transport supplies the data-plane implementations a manifold
// or publisher uses to move bytes to a remote destination: a gRPC
// transport using a raw byte codec (this module carries no generated
// service stubs, so it invokes a fixed method name directly rather than
// going through a typed client) and a WebSocket transport for
// environments without HTTP/2.
package transport

import (
	"crypto/rand"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/blake2b"
)

// compressThreshold is the payload size above which a descriptor is
// zstd-compressed before being put on the wire, mirroring the teacher's
// archive tooling's size-gated compression choice.
const compressThreshold = 256

// descriptor is the wire envelope every transport sends: an identifier,
// routing metadata, an integrity checksum, and the (possibly compressed)
// payload. Encoding with sonic rather than encoding/json keeps descriptor
// framing on the same JSON library the rest of the domain stack uses for
// larger payloads.
type descriptor struct {
	ID         string `json:"id"`
	Dest       uint64 `json:"dest"`
	Checksum   []byte `json:"checksum"`
	Compressed bool   `json:"compressed"`
	Payload    []byte `json:"payload"`
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("transport: building zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("transport: building zstd decoder: %v", err))
	}
}

// EncodeDescriptor wraps payload addressed to dest into a framed,
// checksummed, possibly compressed wire message.
func EncodeDescriptor(dest uint64, payload []byte) ([]byte, error) {
	sum := blake2b.Sum256(payload)

	body := payload
	compressed := false
	if len(payload) > compressThreshold {
		body = zstdEncoder.EncodeAll(payload, nil)
		compressed = true
	}

	id, err := newULID()
	if err != nil {
		return nil, fmt.Errorf("transport: generating descriptor id: %w", err)
	}

	d := descriptor{
		ID:         id.String(),
		Dest:       dest,
		Checksum:   sum[:],
		Compressed: compressed,
		Payload:    body,
	}
	return sonic.Marshal(d)
}

// DecodeDescriptor reverses EncodeDescriptor, decompressing and
// verifying the checksum before returning the original payload.
func DecodeDescriptor(frame []byte) (dest uint64, payload []byte, err error) {
	var d descriptor
	if err := sonic.Unmarshal(frame, &d); err != nil {
		return 0, nil, fmt.Errorf("transport: decoding descriptor: %w", err)
	}

	body := d.Payload
	if d.Compressed {
		body, err = zstdDecoder.DecodeAll(d.Payload, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("transport: decompressing descriptor %s: %w", d.ID, err)
		}
	}

	sum := blake2b.Sum256(body)
	if len(d.Checksum) != len(sum) || string(d.Checksum) != string(sum[:]) {
		return 0, nil, fmt.Errorf("transport: checksum mismatch on descriptor %s", d.ID)
	}
	return d.Dest, body, nil
}

func newULID() (ulid.ULID, error) {
	return ulid.New(ulid.Now(), rand.Reader)
}
