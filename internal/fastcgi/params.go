package fastcgi

import "encoding/binary"

// encodeParamLen writes the FastCGI length prefix for n: 1 byte if
// n < 128, else a 4-byte big-endian value with the high bit set.
func encodeParamLen(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(n)|0x80000000)
	return buf
}

// encodeParams serialises an ordered set of name/value pairs into the
// FastCGI PARAMS wire format.
func encodeParams(pairs [][2]string) []byte {
	var out []byte
	for _, kv := range pairs {
		name, val := kv[0], kv[1]
		out = append(out, encodeParamLen(len(name))...)
		out = append(out, encodeParamLen(len(val))...)
		out = append(out, name...)
		out = append(out, val...)
	}
	return out
}
