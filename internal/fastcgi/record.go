// Package fastcgi implements the FastCGI/1 protocol client of spec.md
// §4.D: record framing, PARAMS/STDIN encoding, STDOUT/END_REQUEST
// decoding, and CGI-style HTTP response parsing.
//
// Grounded on _examples/other_examples/7f1a0e07_caddyserver-caddy__modules-
// caddyhttp-reverseproxy-fastcgi-fastcgi.go.go (CGI env var construction,
// header/body split, dial/read/write timeouts) and
// 12f4e2f0_wudi-gateway__internal-proxy-fastcgi-fastcgi.go.go (minimal
// record framing shape); byte-level record layout cross-checked against
// original_source/src/external_connections/fastcgi.rs.
package fastcgi

import (
	"encoding/binary"
	"io"
)

// Record types used (spec.md §4.D).
const (
	typeBeginRequest = 1
	typeEndRequest   = 3
	typeParams       = 4
	typeStdin        = 5
	typeStdout       = 6
	typeStderr       = 7
)

const (
	roleResponder = 1
	version1      = 1
)

// maxPayload is the largest content_length a single FastCGI record can
// carry (16-bit length field).
const maxPayload = 65535

// header is the 8-byte FastCGI record header.
type header struct {
	version       uint8
	recType       uint8
	requestID     uint16
	contentLength uint16
	paddingLength uint8
	reserved      uint8
}

func (h header) marshal() []byte {
	buf := make([]byte, 8)
	buf[0] = h.version
	buf[1] = h.recType
	binary.BigEndian.PutUint16(buf[2:4], h.requestID)
	binary.BigEndian.PutUint16(buf[4:6], h.contentLength)
	buf[6] = h.paddingLength
	buf[7] = h.reserved
	return buf
}

func readHeader(r io.Reader) (header, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return header{}, err
	}
	return header{
		version:       buf[0],
		recType:       buf[1],
		requestID:     binary.BigEndian.Uint16(buf[2:4]),
		contentLength: binary.BigEndian.Uint16(buf[4:6]),
		paddingLength: buf[6],
		reserved:      buf[7],
	}, nil
}

// writeRecord writes one framed record (header + payload + padding) to w.
// payload must be <= maxPayload bytes; callers split larger content into
// multiple records.
func writeRecord(w io.Writer, recType uint8, requestID uint16, payload []byte) error {
	if len(payload) > maxPayload {
		payload = payload[:maxPayload]
	}
	pad := (8 - (len(payload) % 8)) % 8
	h := header{
		version:       version1,
		recType:       recType,
		requestID:     requestID,
		contentLength: uint16(len(payload)),
		paddingLength: uint8(pad),
	}
	if _, err := w.Write(h.marshal()); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	if pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

// writeRecordsChunked splits payload across as many maxPayload-sized
// records as needed.
func writeRecordsChunked(w io.Writer, recType uint8, requestID uint16, payload []byte) error {
	if len(payload) == 0 {
		return writeRecord(w, recType, requestID, nil)
	}
	for len(payload) > 0 {
		n := len(payload)
		if n > maxPayload {
			n = maxPayload
		}
		if err := writeRecord(w, recType, requestID, payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// beginRequestBody is the 8-byte BEGIN_REQUEST payload.
func beginRequestBody(role uint16, flags uint8) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], role)
	buf[2] = flags
	return buf
}
