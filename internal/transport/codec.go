package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// Framing constants.
const (
	// PrefixSize is the size of the length-prefix datagram.
	PrefixSize = 8

	// MaxBodySize is the largest body that fits in one UDP datagram over IPv4.
	MaxBodySize = 65507
)

// EncodeBody serialises payload to the JSON text that travels in the body
// datagram. HTML characters are not escaped and no trailing newline is added.
func EncodeBody(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	body := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}
	return body, nil
}

// EncodePrefix returns the 8-byte little-endian length prefix for a body of
// size n.
func EncodePrefix(n int) []byte {
	prefix := make([]byte, PrefixSize)
	binary.LittleEndian.PutUint64(prefix, uint64(n)) //nolint:gosec // n is a slice length
	return prefix
}

// Encode frames payload as the two datagrams of one message.
//
// Returns:
//   - prefix: 8-byte little-endian body length
//   - body: JSON text
//   - err: encoding failure or ErrPayloadTooLarge
func Encode(payload any) (prefix, body []byte, err error) {
	body, err = EncodeBody(payload)
	if err != nil {
		return nil, nil, err
	}
	return EncodePrefix(len(body)), body, nil
}

// DecodePrefix parses a length-prefix datagram.
//
// The datagram must be exactly PrefixSize bytes and announce a body no
// larger than MaxBodySize.
func DecodePrefix(datagram []byte) (uint64, error) {
	if len(datagram) != PrefixSize {
		return 0, fmt.Errorf("%w: length prefix is %d bytes, want %d", ErrDecode, len(datagram), PrefixSize)
	}

	n := binary.LittleEndian.Uint64(datagram)
	if n > MaxBodySize {
		return 0, fmt.Errorf("%w: announced body of %d bytes exceeds %d", ErrDecode, n, MaxBodySize)
	}
	return n, nil
}

// DecodeBody checks a body datagram against its announced length and returns
// it as text. Invalid UTF-8 sequences are replaced with U+FFFD.
func DecodeBody(datagram []byte, want uint64) (string, error) {
	if uint64(len(datagram)) != want {
		return "", fmt.Errorf("%w: body is %d bytes, prefix announced %d", ErrDecode, len(datagram), want)
	}
	return strings.ToValidUTF8(string(datagram), "\uFFFD"), nil
}
