package api

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

const maxBodySize = 256 * 1024

var (
	lastTimestamp int64
)

// nextTimestamp returns a strictly increasing unix-nano timestamp so activity
// events from one instance sort in emit order.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func decodeJSON(body io.Reader, v any, strict bool) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, maxBodySize))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}
