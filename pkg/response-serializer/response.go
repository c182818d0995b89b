package serializer

import (
	"bufio"
	"bytes"
	"net/http"
)

// ResponseToBytes converts a response to its HTTP/1.1 wire representation,
// stored byte-for-byte: status line, headers and body.
// Writing the response consumes its body, so the body is re-read from the
// serialized form and set back on the response before returning. The caller
// can therefore still send the response downstream after serializing it.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	clone, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clone.Body
	return bts, nil
}

// BytesToResponse parses a stored response. The request may be nil; when
// given it is attached to the parsed response for logging purposes.
func BytesToResponse(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}
