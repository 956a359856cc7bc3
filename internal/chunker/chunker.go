// Package chunker splits a committed version's change-row cursor into
// a stream of broadcast-ready frames covering contiguous sequence
// ranges, bounded by a configured chunk size.
package chunker

import "fmt"

// Change is the minimal shape the chunker needs from a change record:
// only its sequence number matters for range bookkeeping. Callers
// carry their own richer record type and pass a slice of it in.
type Change interface {
	Seq() int64
}

// Range is an inclusive sequence range [Start, End].
type Range struct {
	Start int64
	End   int64
}

// Frame is one yielded chunk: a (possibly empty) slice of records and
// the inclusive sequence range it covers.
type Frame[T Change] struct {
	Records []T
	Range   Range
}

// Source is a finite, fallible, ascending-by-seq iterator of change
// records. Next returns (record, true, nil) while records remain,
// (zero, false, nil) at end of sequence, or (zero, false, err) on
// failure. Once it returns an error the chunker never calls Next
// again.
type Source[T Change] interface {
	Next() (T, bool, error)
}

// Chunker lazily converts a Source into a sequence of Frames. Build
// one with New and drive it with Next until ok is false.
type Chunker[T Change] struct {
	src       Source[T]
	chunkSize int
	lastSeq   int64

	rangeStart int64
	buf        []T
	done       bool
	err        error
}

// New builds a Chunker over src, covering the inclusive range
// [startSeq, lastSeq], yielding frames of at most chunkSize records.
// chunkSize must be > 0; the zero value is rejected.
func New[T Change](src Source[T], startSeq, lastSeq int64, chunkSize int) (*Chunker[T], error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk_size must be positive, got %d", chunkSize)
	}
	return &Chunker[T]{
		src:        src,
		chunkSize:  chunkSize,
		lastSeq:    lastSeq,
		rangeStart: startSeq,
	}, nil
}

// Next returns the next frame, or ok=false once the chunker is
// exhausted. err is non-nil only if the underlying source failed;
// when it is, the returned frame is the zero value and the chunker is
// terminated (subsequent calls also return ok=false, err=nil).
func (c *Chunker[T]) Next() (frame Frame[T], ok bool, err error) {
	if c.done {
		return Frame[T]{}, false, nil
	}
	if c.err != nil {
		err, c.err = c.err, nil
		c.done = true
		return Frame[T]{}, false, err
	}

	for {
		rec, has, rerr := c.src.Next()
		if rerr != nil {
			c.done = true
			return Frame[T]{}, false, rerr
		}
		if !has {
			return c.finalFrame(), true, nil
		}

		c.buf = append(c.buf, rec)
		seq := rec.Seq()

		if seq == c.lastSeq {
			return c.finalFrame(), true, nil
		}
		if len(c.buf) == c.chunkSize {
			f := Frame[T]{
				Records: c.buf,
				Range:   Range{Start: c.rangeStart, End: seq},
			}
			c.rangeStart = seq + 1
			c.buf = nil
			return f, true, nil
		}
	}
}

// finalFrame packages the remaining buffered records (possibly none)
// as the terminal frame, whose range always closes at lastSeq
// regardless of how many records it actually carries.
func (c *Chunker[T]) finalFrame() Frame[T] {
	c.done = true
	f := Frame[T]{
		Records: c.buf,
		Range:   Range{Start: c.rangeStart, End: c.lastSeq},
	}
	c.buf = nil
	return f
}

// Drain collects every frame from c into a slice. Intended for small,
// test-scale inputs; production callers should use Next in a loop so
// large versions don't buffer entirely in memory.
func Drain[T Change](c *Chunker[T]) ([]Frame[T], error) {
	var out []Frame[T]
	for {
		f, ok, err := c.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, f)
	}
}
