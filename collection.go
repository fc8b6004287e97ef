package vector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// geoJSONLayerName is the layer name GeoJSON datasets are written with.
const geoJSONLayerName = "OgrGeoJSON"

// Collection is a file-like handle on one layer of a vector dataset. A
// Collection is not safe for concurrent use.
type Collection struct {
	path       string
	mode       Mode
	name       string
	layerIndex int
	encoding   string

	env     *Env
	entered bool
	session Session
	log     logrus.FieldLogger

	driver         string
	driverComputed bool
	schema         *Schema
	schemaComputed bool
	crs            string
	crsComputed    bool
	crsWKT         string
	crsWKTComputed bool

	closed         bool
	length         int
	bounds         orb.Bound
	boundsComputed bool
	iterators      map[*Iterator]struct{}
}

// Open opens the dataset at path in the given mode.
//
// In write mode opts must name a driver and a schema with both a geometry
// type and properties. A WKT CRS takes precedence over a proj-style one.
// Read and append modes infer driver, schema and CRS from the dataset.
func Open(path string, mode Mode, opts *Options) (*Collection, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if path == "" {
		return nil, fmt.Errorf("%w: invalid path: %q", ErrInvalidArgument, path)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: invalid mode: %q", ErrInvalidArgument, mode)
	}
	if opts.VSI != "" && !ValidVSI(opts.VSI) {
		return nil, fmt.Errorf("%w: invalid vsi: %q", ErrInvalidArgument, opts.VSI)
	}
	if opts.LayerIndex < 0 {
		return nil, fmt.Errorf("%w: invalid layer index: %d", ErrInvalidArgument, opts.LayerIndex)
	}
	for _, name := range opts.EnabledDrivers {
		if _, ok := supportedDrivers[name]; !ok {
			return nil, fmt.Errorf("%w: unsupported driver: %q", ErrDriver, name)
		}
	}

	c := &Collection{
		mode:       mode,
		layerIndex: opts.LayerIndex,
		encoding:   opts.Encoding,
		env:        opts.Env,
		iterators:  map[*Iterator]struct{}{},
	}
	if c.env == nil {
		c.env = DefaultEnv()
	}

	if mode == ModeWrite {
		if err := c.prepareWrite(path, opts); err != nil {
			return nil, err
		}
		c.path = VSIPath(path, opts.VSI, opts.Archive)
	} else {
		c.name = opts.Layer
		c.path = resolveArchiveRoot(VSIPath(path, opts.VSI, opts.Archive))
	}

	c.log = c.env.Logger().WithFields(logrus.Fields{
		"path": c.path,
		"mode": string(mode),
	})

	if err := c.start(opts); err != nil {
		sessionOpenFailures.WithLabelValues(string(mode)).Inc()
		return nil, err
	}
	return c, nil
}

// prepareWrite checks the write mode arguments and records the driver,
// schema and CRS they supply.
func (c *Collection) prepareWrite(path string, opts *Options) error {
	if opts.LayerIndex != 0 {
		return fmt.Errorf("%w: in 'w' mode, layer names must be strings", ErrInvalidArgument)
	}
	driver := canonicalDriver(opts.Driver)
	if driver == "GeoJSON" {
		if opts.Layer != "" {
			return fmt.Errorf("%w: the GeoJSON format does not have layers", ErrInvalidArgument)
		}
		c.name = geoJSONLayerName
	} else {
		c.name = opts.Layer
		if c.name == "" {
			c.name = DefaultLayerName(path)
		}
	}

	switch modes, ok := supportedDrivers[driver]; {
	case driver == "":
		return fmt.Errorf("%w: no driver", ErrDriver)
	case !ok:
		return fmt.Errorf("%w: unsupported driver: %q", ErrDriver, driver)
	case !strings.Contains(modes, string(c.mode)):
		return fmt.Errorf("%w: unsupported mode: %q", ErrDriver, c.mode)
	}
	c.driver, c.driverComputed = driver, true

	switch s := opts.Schema; {
	case s == nil:
		return fmt.Errorf("%w: no schema", ErrSchema)
	case s.Properties == nil:
		return fmt.Errorf("%w: schema lacks: properties", ErrSchema)
	case s.Geometry == "":
		return fmt.Errorf("%w: schema lacks: geometry", ErrSchema)
	}
	c.schema, c.schemaComputed = opts.Schema.Clone(), true

	switch {
	case opts.CRSWKT != "":
		c.crsWKT, c.crsWKTComputed = opts.CRSWKT, true
	case opts.CRS != "":
		if !ValidCRS(opts.CRS) {
			return fmt.Errorf("%w: crs lacks init or proj parameter: %q", ErrCRS, opts.CRS)
		}
		c.crs, c.crsComputed = opts.CRS, true
	}
	return nil
}

// start enters the runtime context and starts the session. Any failure
// leaves c closed with no session and the context exited.
func (c *Collection) start(opts *Options) error {
	c.env.enter()
	c.entered = true

	enabled := opts.EnabledDrivers
	if len(enabled) == 0 {
		enabled = c.env.EnabledDrivers()
	}
	h := &Handle{
		Path:       c.path,
		Mode:       c.mode,
		Driver:     opts.Driver,
		Layer:      c.name,
		LayerIndex: c.layerIndex,
		Schema:     c.schema.Clone(),
		CRS:        c.crs,
		CRSWKT:     c.crsWKT,
		Encoding:   opts.Encoding,
		Options:    opts.LayerOptions,
		Env:        c.env,
		Log:        c.log,
	}
	if c.mode == ModeWrite {
		h.Driver = c.driver
	}

	d, err := resolveDriver(h, enabled)
	if err != nil {
		c.abort()
		return err
	}
	sess, err := d.Start(h)
	if err != nil {
		c.abort()
		return fmt.Errorf("%w: failed to open dataset (mode=%s): %s: %w", ErrDriver, c.mode, c.path, err)
	}
	c.session = sess

	if err := c.guardDriverMode(); err != nil {
		if stopErr := sess.Stop(); stopErr != nil {
			c.log.WithError(stopErr).Warn("failed to stop rejected session")
		}
		c.session = nil
		c.abort()
		return err
	}

	if c.encoding == "" {
		c.encoding = strings.ToLower(sess.FileEncoding())
	}
	c.log = c.log.WithField("driver", sess.Driver())
	sessionsOpened.WithLabelValues(sess.Driver(), string(c.mode)).Inc()
	activeSessions.Inc()
	c.log.Debug("started session")
	return nil
}

// abort releases the runtime context of a collection whose session never
// became usable.
func (c *Collection) abort() {
	c.closed = true
	if c.entered {
		c.entered = false
		c.env.exit()
	}
}

// guardDriverMode checks the driver the session actually opened against the
// support table.
func (c *Collection) guardDriverMode() error {
	driver := c.session.Driver()
	modes, ok := supportedDrivers[driver]
	if !ok {
		return fmt.Errorf("%w: unsupported driver: %q", ErrDriver, driver)
	}
	if !strings.Contains(modes, string(c.mode)) {
		return fmt.Errorf("%w: unsupported mode: %q", ErrDriver, c.mode)
	}
	return nil
}

// Path returns the resolved, possibly virtual, dataset path.
func (c *Collection) Path() string { return c.path }

// Mode returns the access mode.
func (c *Collection) Mode() Mode { return c.mode }

// Encoding returns the attribute encoding.
func (c *Collection) Encoding() string { return c.encoding }

// Closed reports whether the collection has been closed.
func (c *Collection) Closed() bool { return c.closed }

type layerNamer interface {
	LayerName() string
}

// Name returns the layer name.
func (c *Collection) Name() string {
	if c.name == "" && c.session != nil {
		if n, ok := c.session.(layerNamer); ok {
			c.name = n.LayerName()
		}
	}
	if c.name == "" {
		return DefaultLayerName(c.path)
	}
	return c.name
}

// Driver returns the name of the driver serving the collection.
func (c *Collection) Driver() string {
	if !c.driverComputed && c.session != nil {
		c.driver, c.driverComputed = c.session.Driver(), true
	}
	return c.driver
}

// Schema returns a copy of the collection's schema.
func (c *Collection) Schema() (*Schema, error) {
	if !c.schemaComputed {
		if c.session == nil {
			return nil, ErrClosed
		}
		s, err := c.session.Schema()
		if err != nil {
			return nil, err
		}
		c.schema, c.schemaComputed = s, true
	}
	return c.schema.Clone(), nil
}

// CRS returns the proj-style CRS, e.g. "+init=epsg:4326".
func (c *Collection) CRS() (string, error) {
	if !c.crsComputed {
		if c.session == nil {
			return "", ErrClosed
		}
		crs, err := c.session.CRS()
		if err != nil {
			return "", err
		}
		c.crs, c.crsComputed = crs, true
	}
	return c.crs, nil
}

// CRSWKT returns the CRS as Well-Known Text.
func (c *Collection) CRSWKT() (string, error) {
	if !c.crsWKTComputed {
		if c.session == nil {
			return "", ErrClosed
		}
		wkt, err := c.session.CRSWKT()
		if err != nil {
			return "", err
		}
		c.crsWKT, c.crsWKTComputed = wkt, true
	}
	return c.crsWKT, nil
}

// Meta returns the driver, schema and CRS of the collection.
func (c *Collection) Meta() (Meta, error) {
	s, err := c.Schema()
	if err != nil {
		return Meta{}, err
	}
	crs, err := c.CRS()
	if err != nil {
		return Meta{}, err
	}
	wkt, err := c.CRSWKT()
	if err != nil {
		return Meta{}, err
	}
	return Meta{Driver: c.Driver(), Schema: *s, CRS: crs, CRSWKT: wkt}, nil
}

// Profile is an alias of Meta.
func (c *Collection) Profile() (Meta, error) { return c.Meta() }

// Filter returns an iterator over features, optionally restricted by q.
// A nil q selects every feature.
func (c *Collection) Filter(q *Query) (*Iterator, error) {
	return c.iterate(q, false)
}

// Values is an alias of Filter.
func (c *Collection) Values(q *Query) (*Iterator, error) {
	return c.iterate(q, false)
}

// Items returns an iterator over (FID, feature) pairs.
func (c *Collection) Items(q *Query) (*Iterator, error) {
	return c.iterate(q, false)
}

// Keys returns an iterator over FIDs only; Iterator.Feature returns nil.
func (c *Collection) Keys(q *Query) (*Iterator, error) {
	return c.iterate(q, true)
}

// Iter returns an iterator over every feature.
func (c *Collection) Iter() (*Iterator, error) {
	return c.iterate(nil, false)
}

func (c *Collection) iterate(q *Query, keysOnly bool) (*Iterator, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.mode != ModeRead {
		return nil, fmt.Errorf("%w: mode %q", ErrNotReadable, c.mode)
	}
	var query Query
	if q != nil {
		query = *q
	}
	query.KeysOnly = keysOnly
	if err := query.Validate(); err != nil {
		return nil, err
	}
	cur, err := c.session.Iterate(query)
	if err != nil {
		return nil, err
	}
	it := &Iterator{coll: c, cur: cur}
	c.iterators[it] = struct{}{}
	return it, nil
}

// Contains reports whether a feature with the given FID exists.
func (c *Collection) Contains(fid int64) (bool, error) {
	if c.closed {
		return false, ErrClosed
	}
	return c.session.HasFeature(fid)
}

// Get returns the feature with the given FID.
func (c *Collection) Get(fid int64) (*geojson.Feature, error) {
	if c.closed {
		return nil, ErrClosed
	}
	return c.session.Get(fid)
}

// WriteRecords stages recs for writing and refreshes the cached length and
// bounds.
func (c *Collection) WriteRecords(recs []*geojson.Feature) error {
	if c.closed {
		return ErrClosed
	}
	if !c.mode.Writable() {
		return fmt.Errorf("%w: mode %q", ErrNotWritable, c.mode)
	}
	if err := c.session.WriteRecords(recs); err != nil {
		return err
	}
	featuresWritten.WithLabelValues(c.Driver()).Add(float64(len(recs)))

	n, err := c.session.Len()
	if err != nil {
		return err
	}
	c.length = n
	return c.refreshBounds()
}

// Write stages a single record for writing.
func (c *Collection) Write(rec *geojson.Feature) error {
	return c.WriteRecords([]*geojson.Feature{rec})
}

// Flush syncs staged records to storage. The cached length never decreases.
func (c *Collection) Flush() error {
	if c.closed {
		return ErrClosed
	}
	if err := c.session.Sync(); err != nil {
		return err
	}
	n, err := c.session.Len()
	if err != nil {
		return err
	}
	if n > c.length {
		c.length = n
	}
	return c.refreshBounds()
}

func (c *Collection) refreshBounds() error {
	b, err := c.session.Extent()
	if err != nil {
		return err
	}
	c.bounds, c.boundsComputed = b, true
	return nil
}

// Len returns the number of features. After Close it returns the last
// value observed.
func (c *Collection) Len() (int, error) {
	if c.length <= 0 && c.session != nil {
		n, err := c.session.Len()
		if err != nil {
			return 0, err
		}
		c.length = n
	}
	if c.length < 0 {
		return 0, ErrCountUnsupported
	}
	return c.length, nil
}

// Bounds returns the extent of the features. After Close it returns the
// last value observed.
func (c *Collection) Bounds() (orb.Bound, error) {
	if !c.boundsComputed && c.session != nil {
		if err := c.refreshBounds(); err != nil {
			return orb.Bound{}, err
		}
	}
	return c.bounds, nil
}

// Close flushes staged records in append and write mode, stops the session
// and releases the runtime context. Iterators fail after Close. Calling
// Close more than once has no effect.
func (c *Collection) Close() error {
	if c.closed {
		return nil
	}

	var errs []error
	if c.session != nil {
		if c.mode.Writable() {
			if err := c.Flush(); err != nil {
				errs = append(errs, fmt.Errorf("flush: %w", err))
			}
			c.log.Debug("flushed buffer")
		}
		if err := c.session.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop session: %w", err))
		}
		c.log.Debug("stopped session")
		c.session = nil
		activeSessions.Dec()
	}

	for it := range c.iterators {
		it.release()
	}
	c.iterators = nil
	c.abort()

	return errors.Join(errs...)
}

func (c *Collection) forget(it *Iterator) {
	delete(c.iterators, it)
}

func (c *Collection) String() string {
	state := "open"
	if c.closed {
		state = "closed"
	}
	return fmt.Sprintf("<%s Collection '%s:%s', mode '%s'>", state, c.path, c.Name(), c.mode)
}
