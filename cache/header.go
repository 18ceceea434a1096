package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// HeaderVersion is written into every artifact. Files carrying another
// version are treated as corrupt.
const HeaderVersion = 5

// Header is the fixed-size binary prefix of every cached artifact. It is
// followed by KeyLabel, the literal cache key, a newline and the body.
type Header struct {
	Version      uint64
	ValidSec     int64
	UpdatingSec  int64
	ErrorSec     int64
	LastModified int64
	Date         int64
	CRC32        uint32
	ValidMsec    uint16
	HeaderStart  uint16
	BodyStart    uint16
	ETagLen      uint8
	ETag         [128]byte
	VaryLen      uint8
	Vary         [128]byte
	Variant      [16]byte
}

// KeyLabel separates the binary header from the stored key.
const KeyLabel = "\nKEY: "

var (
	// HeaderSize is the encoded size of Header.
	HeaderSize = binary.Size(Header{})

	// KeyOffset is the file offset of the first stored key byte.
	KeyOffset = HeaderSize + len(KeyLabel)
)

var (
	ErrVersionMismatch = errors.New("artifact header version mismatch")
	ErrCorrupt         = errors.New("corrupt artifact")
	ErrKeyTooLong      = errors.New("key too long")

	// ErrShortKey is returned by ReadKeyPrefix when the stored key is
	// shorter than the requested number of bytes.
	ErrShortKey = errors.New("stored key shorter than requested prefix")
)

// ValidUntil returns the expiry time encoded in h.
func (h *Header) ValidUntil() time.Time {
	if h.ValidSec == 0 {
		return time.Time{}
	}
	return time.Unix(h.ValidSec, int64(h.ValidMsec)*int64(time.Millisecond))
}

// SetValidUntil stores t with millisecond precision.
func (h *Header) SetValidUntil(t time.Time) {
	h.ValidSec = t.Unix()
	h.ValidMsec = uint16(t.Nanosecond() / int(time.Millisecond))
}

// SetETag stores the entity tag. It fails for tags exceeding the fixed
// buffer.
func (h *Header) SetETag(tag string) error {
	if len(tag) > len(h.ETag) {
		return fmt.Errorf("etag exceeds %d bytes", len(h.ETag))
	}
	h.ETagLen = uint8(len(tag))
	copy(h.ETag[:], tag)
	return nil
}

// WriteArtifact writes h, the key and body to w. Version, HeaderStart and
// BodyStart are filled in.
func WriteArtifact(w io.Writer, h Header, key string, body []byte) error {
	start := KeyOffset + len(key) + 1
	if start > math.MaxUint16 {
		return ErrKeyTooLong
	}
	h.Version = HeaderVersion
	h.HeaderStart = uint16(start)
	h.BodyStart = uint16(start)

	var buf bytes.Buffer
	buf.Grow(start + len(body))
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf.WriteString(KeyLabel)
	buf.WriteString(key)
	buf.WriteByte('\n')
	buf.Write(body)

	_, err := buf.WriteTo(w)
	return err
}

// ReadHeader decodes the artifact header at the start of r.
func ReadHeader(r io.ReaderAt) (h Header, err error) {
	err = binary.Read(io.NewSectionReader(r, 0, int64(HeaderSize)), binary.LittleEndian, &h)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return h, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		return h, err
	}
	if h.Version != HeaderVersion {
		return h, ErrVersionMismatch
	}
	if int(h.HeaderStart) <= KeyOffset || h.BodyStart < h.HeaderStart {
		return h, fmt.Errorf("%w: invalid header offsets", ErrCorrupt)
	}
	return h, nil
}

// ReadKey returns the full key stored after h.
func ReadKey(r io.ReaderAt, h Header) (string, error) {
	n := int(h.HeaderStart) - HeaderSize
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(r, int64(HeaderSize), int64(n)), buf); err != nil {
		return "", fmt.Errorf("%w: truncated key", ErrCorrupt)
	}
	if !bytes.HasPrefix(buf, []byte(KeyLabel)) || buf[n-1] != '\n' {
		return "", fmt.Errorf("%w: missing key label", ErrCorrupt)
	}
	return string(buf[len(KeyLabel) : n-1]), nil
}

// ReadKeyPrefix reads the first n bytes of the stored key without decoding
// the header. It returns ErrShortKey when the stored key (or the file) ends
// before n bytes.
func ReadKeyPrefix(r io.ReaderAt, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(r, int64(KeyOffset), int64(n)), buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortKey
		}
		return nil, err
	}
	if bytes.IndexByte(buf, '\n') >= 0 {
		return nil, ErrShortKey
	}
	return buf, nil
}
