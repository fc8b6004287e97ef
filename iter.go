package vector

import "github.com/paulmach/orb/geojson"

// Iterator is a lazy, single-pass sequence over the features of a
// collection. It is only usable while the collection is open:
//
//	it, err := c.Filter(&vector.Query{BBox: &bound})
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for it.Next() {
//		f := it.Feature()
//		...
//	}
//	return it.Err()
type Iterator struct {
	coll *Collection
	cur  Cursor

	key  int64
	feat *geojson.Feature
	err  error
	done bool
}

// Next advances to the next feature. It returns false when the sequence is
// exhausted, on error, or once the collection has been closed.
func (it *Iterator) Next() bool {
	if it.coll.closed {
		if it.err == nil {
			it.err = ErrClosed
		}
		it.key, it.feat = 0, nil
		return false
	}
	if it.done {
		return false
	}
	if !it.cur.Next() {
		it.err = it.cur.Err()
		it.finish()
		return false
	}
	it.key, it.feat = it.cur.FID(), it.cur.Feature()
	featuresRead.WithLabelValues(it.coll.Driver()).Inc()
	return true
}

// Key returns the FID of the current feature.
func (it *Iterator) Key() int64 { return it.key }

// Feature returns the current feature, or nil for a Keys iterator.
func (it *Iterator) Feature() *geojson.Feature { return it.feat }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator. It does not close the collection.
func (it *Iterator) Close() error {
	if it.done {
		return nil
	}
	it.done = true
	it.coll.forget(it)
	return it.cur.Close()
}

func (it *Iterator) finish() {
	if it.done {
		return
	}
	it.done = true
	_ = it.cur.Close()
	it.coll.forget(it)
}

// release is called by the collection when it closes.
func (it *Iterator) release() {
	it.done = true
	_ = it.cur.Close()
	it.feat = nil
}
