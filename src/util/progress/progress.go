// Package progress provides byte accounting for transfer streams.
package progress

import (
	"io"
	"sync/atomic"
)

// Counter wraps an io.Reader and counts the bytes pulled through it, so
// transfers can report how much data actually moved.
type Counter struct {
	r io.Reader
	n atomic.Int64
}

func NewCounter(r io.Reader) *Counter {
	return &Counter{r: r}
}

func (c *Counter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
	}
	return n, err
}

// N returns the number of bytes read so far.
func (c *Counter) N() int64 {
	return c.n.Load()
}
