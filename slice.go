package vector

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Slice selects features by position with Python slicing semantics: negative
// endpoints count from the end and omitted endpoints default to the whole
// sequence in the direction of the step. The zero value selects everything.
type Slice struct {
	start, stop, step *int
}

// NewSlice builds a Slice the way Python's slice(*args) does: one argument is
// the stop, two are start and stop, three add the step.
func NewSlice(args ...int) (Slice, error) {
	var s Slice
	switch len(args) {
	case 0:
	case 1:
		s = s.To(args[0])
	case 2:
		s = s.From(args[0]).To(args[1])
	case 3:
		s = s.From(args[0]).To(args[1]).By(args[2])
	default:
		return Slice{}, fmt.Errorf("%w: slice expected at most 3 arguments, got %d", ErrInvalidArgument, len(args))
	}
	if s.step != nil && *s.step == 0 {
		return Slice{}, fmt.Errorf("%w: slice step cannot be zero", ErrInvalidArgument)
	}
	return s, nil
}

// From returns s with its start set.
func (s Slice) From(i int) Slice { s.start = &i; return s }

// To returns s with its stop set.
func (s Slice) To(i int) Slice { s.stop = &i; return s }

// By returns s with its step set.
func (s Slice) By(i int) Slice { s.step = &i; return s }

// IsZero reports whether s selects everything.
func (s Slice) IsZero() bool {
	return s.start == nil && s.stop == nil && (s.step == nil || *s.step == 1)
}

// Indices resolves s against a sequence of length n, like slice.indices.
func (s Slice) Indices(n int) (start, stop, step int, err error) {
	step = 1
	if s.step != nil {
		step = *s.step
	}
	if step == 0 {
		return 0, 0, 0, fmt.Errorf("%w: slice step cannot be zero", ErrInvalidArgument)
	}

	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}
	clamp := func(p *int, def int) int {
		if p == nil {
			return def
		}
		i := *p
		if i < 0 {
			i += n
			if i < lower {
				i = lower
			}
		} else if i > upper {
			i = upper
		}
		return i
	}

	if step > 0 {
		return clamp(s.start, lower), clamp(s.stop, upper), step, nil
	}
	return clamp(s.start, upper), clamp(s.stop, lower), step, nil
}

// Query parameterizes Session.Iterate.
type Query struct {
	Slice    Slice
	BBox     *orb.Bound   // Bounding box filter
	Mask     orb.Geometry // Mask geometry filter; exclusive with BBox
	KeysOnly bool         // Cursor features may be nil
}

// Validate checks the query before any cursor is built.
func (q Query) Validate() error {
	if q.BBox != nil && q.Mask != nil {
		return ErrBBoxAndMask
	}
	if q.Slice.step != nil && *q.Slice.step == 0 {
		return fmt.Errorf("%w: slice step cannot be zero", ErrInvalidArgument)
	}
	return nil
}

// Filtered reports whether the query has a spatial filter.
func (q Query) Filtered() bool {
	return q.BBox != nil || q.Mask != nil
}

// Match applies the spatial filter to g. The mask test compares envelopes,
// refined to containment for point features in polygonal masks.
func (q Query) Match(g orb.Geometry) bool {
	if !q.Filtered() {
		return true
	}
	if g == nil {
		return false
	}
	b := g.Bound()
	if q.BBox != nil {
		return q.BBox.Intersects(b)
	}
	if !q.Mask.Bound().Intersects(b) {
		return false
	}
	if p, ok := g.(orb.Point); ok {
		switch m := q.Mask.(type) {
		case orb.Polygon:
			return planar.PolygonContains(m, p)
		case orb.MultiPolygon:
			return planar.MultiPolygonContains(m, p)
		}
	}
	return true
}

// FetchFunc returns the FID and feature at position i of a layer.
type FetchFunc func(i int) (int64, *geojson.Feature, error)

// NewCursor returns a lazy cursor over the n positions of a layer, applying
// q's spatial filter and then its slice to the filtered sequence.
func NewCursor(n int, q Query, fetch FetchFunc) Cursor {
	return &indexCursor{n: n, q: q, fetch: fetch}
}

type match struct {
	fid  int64
	feat *geojson.Feature
}

type indexCursor struct {
	n     int
	q     Query
	fetch FetchFunc

	matches []match
	started bool
	pos     int
	stop    int
	step    int

	// streaming cursors filter as they go: scan is the next layer position
	// and seen counts the matches passed so far.
	streaming bool
	scan      int
	seen      int

	fid    int64
	feat   *geojson.Feature
	err    error
	closed bool
}

// streamable reports whether the slice bounds of a filtered query are known
// without counting the matches.
func (c *indexCursor) streamable() bool {
	s := c.q.Slice
	return c.q.Filtered() &&
		(s.step == nil || *s.step > 0) &&
		(s.start == nil || *s.start >= 0) &&
		(s.stop == nil || *s.stop >= 0)
}

func (c *indexCursor) init() error {
	c.started = true
	if c.streamable() {
		c.streaming = true
		c.pos, c.stop, c.step = 0, c.n, 1
		if s := c.q.Slice; s.start != nil {
			c.pos = *s.start
		}
		if s := c.q.Slice; s.stop != nil && *s.stop < c.n {
			c.stop = *s.stop
		}
		if s := c.q.Slice; s.step != nil {
			c.step = *s.step
		}
		return nil
	}

	count := c.n
	if c.q.Filtered() {
		for i := 0; i < c.n; i++ {
			fid, f, err := c.fetch(i)
			if err != nil {
				return err
			}
			if f != nil && c.q.Match(f.Geometry) {
				c.matches = append(c.matches, match{fid: fid, feat: f})
			}
		}
		count = len(c.matches)
	}
	start, stop, step, err := c.q.Slice.Indices(count)
	if err != nil {
		return err
	}
	c.pos, c.stop, c.step = start, stop, step
	return nil
}

func (c *indexCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.started {
		if err := c.init(); err != nil {
			c.err = err
			return false
		}
	}
	if (c.step > 0 && c.pos >= c.stop) || (c.step < 0 && c.pos <= c.stop) {
		return false
	}

	switch {
	case c.streaming:
		if !c.nextMatch() {
			return false
		}
	case c.q.Filtered():
		i := c.pos
		c.pos += c.step
		c.fid, c.feat = c.matches[i].fid, c.matches[i].feat
	default:
		i := c.pos
		c.pos += c.step
		fid, f, err := c.fetch(i)
		if err != nil {
			c.err = err
			return false
		}
		c.fid, c.feat = fid, f
	}
	if c.q.KeysOnly {
		c.feat = nil
	}
	return true
}

// nextMatch scans forward to the match at index pos.
func (c *indexCursor) nextMatch() bool {
	for c.scan < c.n {
		i := c.scan
		c.scan++
		fid, f, err := c.fetch(i)
		if err != nil {
			c.err = err
			return false
		}
		if f == nil || !c.q.Match(f.Geometry) {
			continue
		}
		idx := c.seen
		c.seen++
		if idx < c.pos {
			continue
		}
		c.pos += c.step
		c.fid, c.feat = fid, f
		return true
	}
	return false
}

func (c *indexCursor) FID() int64                { return c.fid }
func (c *indexCursor) Feature() *geojson.Feature { return c.feat }
func (c *indexCursor) Err() error                { return c.err }

func (c *indexCursor) Close() error {
	c.closed = true
	c.matches = nil
	c.feat = nil
	return nil
}
