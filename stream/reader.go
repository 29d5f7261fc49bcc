// Package stream turns an inference token stream into text deltas.
package stream

import "strings"

// Upstream is the pull side of a live generation stream.
type Upstream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Reader yields non-empty text deltas in emission order. Concatenating every
// delta gives the reply truncated before the first stop marker. Text that may
// be the start of a marker is held back until the next chunk settles it.
//
//	for r.Next() {
//		fmt.Print(r.Delta())
//	}
//	if err := r.Err(); err != nil {
//		...
//	}
type Reader struct {
	upstream Upstream
	markers  []string

	pending string
	content strings.Builder
	delta   string

	done    bool
	stopped bool
	err     error
	closed  bool
}

func NewReader(upstream Upstream, stopMarkers []string) *Reader {
	markers := make([]string, 0, len(stopMarkers))
	for _, m := range stopMarkers {
		if m != "" {
			markers = append(markers, m)
		}
	}
	return &Reader{upstream: upstream, markers: markers}
}

func (r *Reader) Next() bool {
	r.delta = ""
	for !r.done {
		if !r.upstream.Next() {
			r.done = true
			if err := r.upstream.Err(); err != nil {
				r.err = &TransportError{Err: err}
			}
			r.Close()
			if r.pending != "" {
				return r.emit(r.flushPending())
			}
			return false
		}

		chunk := r.upstream.Text()
		if chunk == "" {
			continue
		}
		r.pending += chunk

		if idx := r.firstMarker(r.pending); idx >= 0 {
			head := r.pending[:idx]
			r.pending = ""
			r.done = true
			r.stopped = true
			r.Close()
			if head != "" {
				return r.emit(head)
			}
			return false
		}

		hold := r.heldSuffix(r.pending)
		out := r.pending[:len(r.pending)-hold]
		r.pending = r.pending[len(r.pending)-hold:]
		if out != "" {
			return r.emit(out)
		}
	}
	return false
}

func (r *Reader) emit(text string) bool {
	r.delta = text
	r.content.WriteString(text)
	return true
}

func (r *Reader) flushPending() string {
	out := r.pending
	r.pending = ""
	return out
}

// firstMarker returns the earliest index at which any marker occurs, or -1.
func (r *Reader) firstMarker(s string) int {
	first := -1
	for _, m := range r.markers {
		if i := strings.Index(s, m); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}

// heldSuffix is the length of the longest suffix of s that is a proper prefix
// of some marker.
func (r *Reader) heldSuffix(s string) int {
	longest := 0
	for _, m := range r.markers {
		for k := len(m) - 1; k > longest; k-- {
			if k <= len(s) && strings.HasSuffix(s, m[:k]) {
				longest = k
				break
			}
		}
	}
	return longest
}

// Delta is the text produced by the last successful Next.
func (r *Reader) Delta() string { return r.delta }

// Content is everything emitted so far.
func (r *Reader) Content() string { return r.content.String() }

// Stopped reports whether the sequence ended on a stop marker.
func (r *Reader) Stopped() bool { return r.stopped }

// Err is nil after a normal completion and a *TransportError otherwise.
func (r *Reader) Err() error { return r.err }

func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.upstream.Close()
}
