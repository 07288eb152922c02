// Package ioutil reads bounded response bodies for logs and test assertions.
package ioutil

import (
	"fmt"
	"io"
)

// TruncatedMark ends a body that was cut at the read limit.
const TruncatedMark = "...<truncated>"

// ReadLimited reads at most limit bytes of r. A longer body is cut and ends
// with TruncatedMark. A read failure is described in the returned string.
func ReadLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	if int64(len(body)) > limit {
		return string(body[:limit]) + TruncatedMark
	}
	return string(body)
}
