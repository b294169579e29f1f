// Package ingest receives the two perception streams off the wire: binary
// drivable-area mask datagrams and JSON POI detection datagrams, both over
// UDP. It owns the wire formats, per-stream statistics, and the receive
// loops; decoded values are handed to the fusion engine by the daemon.
package ingest

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/drivegate/internal/fusion"
)

// Mask datagram layout (little-endian):
//
//	offset 0   magic     "DGMK" (4 bytes)
//	offset 4   version   uint8, currently 1
//	offset 5   flags     uint8, bit 0: deflate-compressed pixel payload
//	offset 6   width     uint16
//	offset 8   height    uint16
//	offset 10  timestamp int64, UnixNano capture time
//	offset 18  pixels    width*height bytes, row-major
//
// The deflate flag is transport framing only: it compresses the byte grid
// for the wire, it does not decode any image format.
const (
	maskMagic      = "DGMK"
	MaskVersion    = 1
	maskHeaderSize = 18

	flagDeflate = 0x01

	// MaxMaskDimension bounds each mask axis. Masks on this path are
	// downsampled grids, not camera frames; anything larger is a framing
	// error, not a big mask.
	MaxMaskDimension = 4096
)

var (
	ErrShortPacket     = errors.New("mask packet shorter than header")
	ErrBadMagic        = errors.New("bad mask packet magic")
	ErrBadVersion      = errors.New("unsupported mask packet version")
	ErrBadDimensions   = errors.New("invalid mask dimensions")
	ErrTruncatedPixels = errors.New("mask pixel payload truncated")
)

// DecodeMask parses one mask datagram into a fusion.Mask. The returned mask
// owns its pixel buffer; the input slice may be reused by the caller.
func DecodeMask(packet []byte) (*fusion.Mask, error) {
	if len(packet) < maskHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(packet))
	}
	if string(packet[0:4]) != maskMagic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, binary.LittleEndian.Uint32(packet[0:4]))
	}
	if v := packet[4]; v != MaskVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	flags := packet[5]
	width := int(binary.LittleEndian.Uint16(packet[6:8]))
	height := int(binary.LittleEndian.Uint16(packet[8:10]))
	if width == 0 || height == 0 || width > MaxMaskDimension || height > MaxMaskDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	ts := int64(binary.LittleEndian.Uint64(packet[10:18]))

	payload := packet[maskHeaderSize:]
	want := width * height
	pix := make([]uint8, want)

	if flags&flagDeflate != 0 {
		fr := flate.NewReader(bytes.NewReader(payload))
		defer fr.Close()
		if _, err := io.ReadFull(fr, pix); err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrTruncatedPixels, err)
		}
	} else {
		if len(payload) < want {
			return nil, fmt.Errorf("%w: have %d pixels, want %d", ErrTruncatedPixels, len(payload), want)
		}
		copy(pix, payload)
	}

	return &fusion.Mask{
		Width:          width,
		Height:         height,
		Pix:            pix,
		TimestampNanos: ts,
	}, nil
}

// EncodeMask serializes m into a datagram. With compress set the pixel
// payload is deflated, which keeps the mostly-uniform grids well under the
// UDP payload limit.
func EncodeMask(m *fusion.Mask, compress bool) ([]byte, error) {
	if m.Width <= 0 || m.Height <= 0 || m.Width > MaxMaskDimension || m.Height > MaxMaskDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrTruncatedPixels, len(m.Pix), m.Width, m.Height)
	}

	buf := make([]byte, maskHeaderSize, maskHeaderSize+len(m.Pix))
	copy(buf[0:4], maskMagic)
	buf[4] = MaskVersion
	binary.LittleEndian.PutUint16(buf[6:8], uint16(m.Width))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(m.Height))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(m.TimestampNanos))

	if !compress {
		return append(buf, m.Pix...), nil
	}

	buf[5] = flagDeflate
	var zbuf bytes.Buffer
	zw, err := flate.NewWriter(&zbuf, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("deflate init: %w", err)
	}
	if _, err := zw.Write(m.Pix); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}
	return append(buf, zbuf.Bytes()...), nil
}
