package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"stagectl/pkg/logging"
)

// maxResponseSize bounds a single length-prefixed response body.
const maxResponseSize = 16 << 20

// ClusterSettingsResponse is the service's answer to a cluster settings request.
type ClusterSettingsResponse struct {
	Settings map[string]string `json:"settings"`
}

// ReadClusterSettingsResponse consumes exactly one length-prefixed response
// (uvarint length followed by a JSON body) from r.
func ReadClusterSettingsResponse(r io.Reader) (ClusterSettingsResponse, error) {
	var resp ClusterSettingsResponse

	size, err := binary.ReadUvarint(asByteReader(r))
	if err != nil {
		return resp, fmt.Errorf("failed to read response length: %w", err)
	}
	if size > maxResponseSize {
		return resp, fmt.Errorf("response of %d bytes exceeds limit of %d", size, maxResponseSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return resp, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("failed to parse response body: %w", err)
	}
	return resp, nil
}

// WriteTo encodes the response in the format ReadClusterSettingsResponse expects.
func (c ClusterSettingsResponse) WriteTo(w io.Writer) (int64, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("failed to encode response: %w", err)
	}

	var buf bytes.Buffer
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(body)))
	buf.Write(prefix[:n])
	buf.Write(body)

	written, err := w.Write(buf.Bytes())
	return int64(written), err
}

// NewClusterSettingsHandler returns a handler that logs what came back.
func NewClusterSettingsHandler() Handler[ClusterSettingsResponse] {
	return Handler[ClusterSettingsResponse]{
		Executor: ExecutorGeneric,
		OnSuccess: func(resp ClusterSettingsResponse) {
			logging.Info(subsystem, "received %d cluster settings", len(resp.Settings))
		},
		OnFailure: func(err error) {
			logging.Error(subsystem, err, "request failed")
		},
		Read: ReadClusterSettingsResponse,
	}
}

// asByteReader avoids buffering past the length prefix when r is not already
// an io.ByteReader.
func asByteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{r: r}
}

type singleByteReader struct {
	r   io.Reader
	buf [1]byte
}

func (s *singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}
