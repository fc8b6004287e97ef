package gpkg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	vector "github.com/tingold/orb-vector"

	_ "modernc.org/sqlite"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
	geomColumn    = "geom"
	fidColumn     = "fid"
)

const createCoreTables = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
    srs_name                 TEXT NOT NULL,
    srs_id                   INTEGER NOT NULL PRIMARY KEY,
    organization             TEXT NOT NULL,
    organization_coordsys_id INTEGER NOT NULL,
    definition               TEXT NOT NULL,
    description              TEXT
);
CREATE TABLE IF NOT EXISTS gpkg_contents (
    table_name  TEXT NOT NULL PRIMARY KEY,
    data_type   TEXT NOT NULL,
    identifier  TEXT UNIQUE,
    description TEXT DEFAULT '',
    last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    min_x       DOUBLE,
    min_y       DOUBLE,
    max_x       DOUBLE,
    max_y       DOUBLE,
    srs_id      INTEGER,
    CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
    table_name         TEXT NOT NULL,
    column_name        TEXT NOT NULL,
    geometry_type_name TEXT NOT NULL,
    srs_id             INTEGER NOT NULL,
    z                  TINYINT NOT NULL,
    m                  TINYINT NOT NULL,
    CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
    CONSTRAINT uk_gc_table_name UNIQUE (table_name),
    CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
    CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
);
INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
    ('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
    ('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');`

// store is an open GeoPackage database.
type store struct {
	db *sql.DB
}

// openStore opens the database file at path, creating the core tables when
// create is set.
func openStore(path string, create bool) (*store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := checkVersion(db); err != nil {
		db.Close()
		return nil, err
	}
	if create {
		if _, err := db.Exec(createCoreTables); err != nil {
			db.Close()
			return nil, fmt.Errorf("create core tables: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d", applicationID, userVersion)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set application id: %w", err)
		}
	}
	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

// checkVersion rejects SQLite libraries older than 3.8.
func checkVersion(db *sql.DB) error {
	var v string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&v); err != nil {
		return fmt.Errorf("query sqlite version: %w", err)
	}
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return fmt.Errorf("%w: %q", ErrVersion, v)
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || major < 3 || (major == 3 && minor < 8) {
		return fmt.Errorf("%w: %q", ErrVersion, v)
	}
	return nil
}

// layers returns the feature tables in creation order.
func (s *store) layers() ([]string, error) {
	rows, err := s.db.Query(`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: list layers: %w", ErrInvalidData, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// layer is the content of one feature table.
type layer struct {
	name     string
	schema   *vector.Schema
	crs      string
	wkt      string
	features []*geojson.Feature
}

// readLayer loads every row of the named feature table in fid order.
func (s *store) readLayer(name string) (*layer, error) {
	var (
		geomCol, geomType string
		srsID, z          int
	)
	err := s.db.QueryRow(
		`SELECT column_name, geometry_type_name, srs_id, z FROM gpkg_geometry_columns WHERE table_name = ?`, name,
	).Scan(&geomCol, &geomType, &srsID, &z)
	if err != nil {
		return nil, fmt.Errorf("%w: layer %q: %w", ErrInvalidData, name, err)
	}

	l := &layer{name: name}
	l.crs, l.wkt, err = s.srs(srsID)
	if err != nil {
		return nil, err
	}

	cols, err := s.columns(name, geomCol)
	if err != nil {
		return nil, err
	}
	l.schema = &vector.Schema{Geometry: schemaGeometryType(geomType, z), Properties: cols}

	selected := []string{quoteIdent(geomCol)}
	for _, c := range cols {
		selected = append(selected, quoteIdent(c.Name))
	}
	rows, err := s.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(selected, ", "), quoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("%w: layer %q: %w", ErrInvalidData, name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		values := make([]any, len(cols))
		dest := []any{&blob}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		g, err := decodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("layer %q feature %d: %w", name, len(l.features), err)
		}
		f := geojson.NewFeature(g)
		for i, c := range cols {
			f.Properties[c.Name] = fromSQL(values[i], c.Type)
		}
		l.features = append(l.features, f)
	}
	return l, rows.Err()
}

// srs resolves a spatial reference system id.
func (s *store) srs(id int) (crs, wkt string, err error) {
	if id <= 0 {
		return "", "", nil
	}
	var org, def string
	var code int
	err = s.db.QueryRow(
		`SELECT organization, organization_coordsys_id, definition FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, id,
	).Scan(&org, &code, &def)
	if err != nil {
		return "", "", fmt.Errorf("%w: srs %d: %w", ErrInvalidData, id, err)
	}
	if strings.EqualFold(org, "EPSG") {
		crs = vector.FromEPSG(code)
	}
	if def != "undefined" {
		wkt = def
	}
	return crs, wkt, nil
}

// columns returns the attribute columns of a table, excluding the primary
// key and the geometry column.
func (s *store) columns(table, geomCol string) ([]vector.Property, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := []vector.Property{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 || strings.EqualFold(name, geomCol) {
			continue
		}
		props = append(props, vector.Property{Name: name, Type: propertyType(typ)})
	}
	return props, rows.Err()
}

// writeLayer replaces the named feature table with features. Other tables
// in the database are left alone.
func (s *store) writeLayer(name string, schema *vector.Schema, crs, wkt string, features []*geojson.Feature) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	srsID, err := registerSRS(tx, crs, wkt)
	if err != nil {
		return err
	}

	table := quoteIdent(name)
	stmts := []string{
		"DROP TABLE IF EXISTS " + table,
		"DELETE FROM gpkg_geometry_columns WHERE table_name = " + quoteString(name),
		"DELETE FROM gpkg_contents WHERE table_name = " + quoteString(name),
	}
	geomType, z := sqlGeometryType(schema.Geometry)
	defs := []string{
		quoteIdent(fidColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL",
		quoteIdent(geomColumn) + " " + geomType,
	}
	for _, p := range schema.Properties {
		typ, err := sqlType(p.Type)
		if err != nil {
			return err
		}
		defs = append(defs, quoteIdent(p.Name)+" "+typ)
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")))
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
	}

	cols := []string{quoteIdent(geomColumn)}
	marks := []string{"?"}
	for _, p := range schema.Properties {
		cols = append(cols, quoteIdent(p.Name))
		marks = append(marks, "?")
	}
	insert, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer insert.Close()

	var extent orb.Bound
	hasExtent := false
	for i, f := range features {
		blob, err := encodeGeometry(f.Geometry, int32(srsID))
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		args := []any{blob}
		for _, p := range schema.Properties {
			v, err := toSQL(f.Properties[p.Name], p.Type)
			if err != nil {
				return fmt.Errorf("feature %d: %w", i, err)
			}
			args = append(args, v)
		}
		if _, err := insert.Exec(args...); err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		if f.Geometry != nil && !isEmpty(f.Geometry) {
			if hasExtent {
				extent = extent.Union(f.Geometry.Bound())
			} else {
				extent, hasExtent = f.Geometry.Bound(), true
			}
		}
	}

	var minX, minY, maxX, maxY any
	if hasExtent {
		minX, minY, maxX, maxY = extent.Min[0], extent.Min[1], extent.Max[0], extent.Max[1]
	}
	if _, err := tx.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		name, name, minX, minY, maxX, maxY, srsID,
	); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, ?, ?, ?, ?, 0)`,
		name, geomColumn, geomType, srsID, z,
	); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return tx.Commit()
}

// registerSRS returns the srs_id for a CRS, inserting a row for EPSG codes
// not yet known to the database. A CRS without an EPSG code maps to the
// undefined geographic SRS.
func registerSRS(tx *sql.Tx, crs, wkt string) (int, error) {
	code, ok := vector.EPSGCode(crs)
	if !ok {
		code, ok = vector.EPSGFromWKT(wkt)
	}
	if !ok {
		return 0, nil
	}
	if wkt == "" {
		wkt, _ = vector.WKTForEPSG(code)
	}
	if wkt == "" {
		wkt = "undefined"
	}
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, 'EPSG', ?, ?)`,
		"EPSG:"+strconv.Itoa(code), code, code, wkt,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: register srs: %w", ErrInvalidData, err)
	}
	return code, nil
}

// propertyType maps a declared column type to a schema property type.
func propertyType(decl string) string {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	base, rest, _ := strings.Cut(decl, "(")
	switch strings.TrimSpace(base) {
	case "INTEGER", "INT", "MEDIUMINT", "SMALLINT", "TINYINT":
		return "int"
	case "BOOLEAN":
		return "bool"
	case "REAL", "DOUBLE", "FLOAT":
		return "float"
	case "DATE":
		return "date"
	case "DATETIME":
		return "datetime"
	case "BLOB":
		return "bytes"
	case "TEXT":
		if n, err := strconv.Atoi(strings.TrimSuffix(rest, ")")); err == nil && n > 0 {
			return vector.FormatFieldType("str", n, 0)
		}
		return "str"
	default:
		return "str"
	}
}

// sqlType maps a schema property type to a declared column type.
func sqlType(propType string) (string, error) {
	base, width, _ := vector.FieldType(propType)
	switch base {
	case "str":
		if width > 0 {
			return fmt.Sprintf("TEXT(%d)", width), nil
		}
		return "TEXT", nil
	case "int":
		return "INTEGER", nil
	case "float":
		return "REAL", nil
	case "bool":
		return "BOOLEAN", nil
	case "date":
		return "DATE", nil
	case "datetime":
		return "DATETIME", nil
	case "time", "json":
		return "TEXT", nil
	case "bytes":
		return "BLOB", nil
	default:
		return "", fmt.Errorf("%w: property type %q", ErrUnsupportedType, propType)
	}
}

// fromSQL converts a scanned column value to the property value for type t.
func fromSQL(v any, t string) any {
	base, _, _ := vector.FieldType(t)
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		if base == "bool" {
			return val != 0
		}
		if base == "float" {
			return float64(val)
		}
	case time.Time:
		if base == "date" {
			return val.Format(time.DateOnly)
		}
		return val.Format("2006-01-02T15:04:05.999")
	case []byte:
		if base == "bytes" {
			return append([]byte(nil), val...)
		}
		return string(val)
	}
	return v
}

// toSQL converts a property value for a column of type t.
func toSQL(v any, t string) (any, error) {
	if v == nil {
		return nil, nil
	}
	base, _, _ := vector.FieldType(t)
	switch base {
	case "bool":
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case "json":
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
		return string(b), nil
	}
	switch val := v.(type) {
	case time.Time:
		if base == "date" {
			return val.Format(time.DateOnly), nil
		}
		return val.Format("2006-01-02T15:04:05.999"), nil
	case int:
		return int64(val), nil
	case bool, int64, int32, float64, float32, string, []byte:
		return val, nil
	default:
		return nil, fmt.Errorf("%w: %T value for %s column", ErrUnsupportedType, v, t)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
