// Package postgis stores regions in PostGIS, as a comparison backend for point
// labelling and as an alternative region source.
package postgis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kass/go-geo-label/pkg/region"
	_ "github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "postgis")

type PostGISIndex struct {
	db *sql.DB
}

// DSN builds a lib/pq connection string
func DSN(host, user, password, dbname string, port int) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// NewPostGISIndex creates a new PostGIS connection
func NewPostGISIndex(dsn string) (*PostGISIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostGISIndex{db: db}, nil
}

// InitSchema recreates the regions table and its spatial index
func (p *PostGISIndex) InitSchema() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,
		`DROP TABLE IF EXISTS regions;`,
		`CREATE TABLE regions (
			ord SERIAL PRIMARY KEY,
			label TEXT NOT NULL,
			geom GEOMETRY(MULTIPOLYGON, 4326) NOT NULL
		);`,
		`CREATE INDEX idx_regions_geom ON regions USING GIST(geom);`,
	}

	for _, query := range queries {
		if _, err := p.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// BulkInsertRegions inserts every region of c in one transaction, keeping
// collection order in the ord column
func (p *PostGISIndex) BulkInsertRegions(ctx context.Context, c *region.Collection[string]) error {
	start := time.Now()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO regions (label, geom)
		VALUES ($1, ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($2), 4326)))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	c.Each(func(label string, mp orb.MultiPolygon) bool {
		data, err := geojson.NewGeometry(mp).MarshalJSON()
		if err != nil {
			insertErr = fmt.Errorf("failed to encode region %s: %w", label, err)
			return false
		}
		if _, err := stmt.ExecContext(ctx, label, string(data)); err != nil {
			insertErr = fmt.Errorf("failed to insert region %s: %w", label, err)
			return false
		}
		return true
	})
	if insertErr != nil {
		return insertErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, "ANALYZE regions;"); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	log.WithFields(logrus.Fields{"regions": c.Len(), "duration": time.Since(start)}).Info("Inserted regions")
	return nil
}

// Label returns the first region, in insertion order, containing p
func (p *PostGISIndex) Label(ctx context.Context, pt orb.Point) (string, bool, error) {
	var label string
	err := p.db.QueryRowContext(ctx, `
		SELECT label FROM regions
		WHERE ST_Intersects(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY ord
		LIMIT 1
	`, pt[0], pt[1]).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to label point: %w", err)
	}
	return label, true, nil
}

// LoadCollection reads every stored region back into a collection
func (p *PostGISIndex) LoadCollection(ctx context.Context) (*region.Collection[string], error) {
	rows, err := p.db.QueryContext(ctx, `SELECT label, ST_AsGeoJSON(geom) FROM regions ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	c := region.NewCollection[string]()
	for rows.Next() {
		var label, raw string
		if err := rows.Scan(&label, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		g, err := geojson.UnmarshalGeometry([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode region %s: %w", label, err)
		}
		switch v := g.Geometry().(type) {
		case orb.MultiPolygon:
			c.Add(label, v)
		case orb.Polygon:
			c.Add(label, orb.MultiPolygon{v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return c, nil
}

// Count returns the number of stored regions
func (p *PostGISIndex) Count() (int64, error) {
	var count int64
	err := p.db.QueryRow("SELECT COUNT(*) FROM regions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count regions: %w", err)
	}
	return count, nil
}

// GetDatabaseStats returns database size and table statistics
func (p *PostGISIndex) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var dbSize string
	err := p.db.QueryRow(`SELECT pg_size_pretty(pg_database_size(current_database()))`).Scan(&dbSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get database size: %w", err)
	}
	stats["database_size"] = dbSize

	var tableSize, indexSize string
	err = p.db.QueryRow(`
		SELECT
			pg_size_pretty(pg_total_relation_size('regions')) as total_size,
			pg_size_pretty(pg_indexes_size('regions')) as index_size
	`).Scan(&tableSize, &indexSize)
	if err != nil {
		stats["table_size"] = "0 bytes"
		stats["index_size"] = "0 bytes"
	} else {
		stats["table_size"] = tableSize
		stats["index_size"] = indexSize
	}

	count, _ := p.Count()
	stats["row_count"] = count

	return stats, nil
}

// Close closes the database connection
func (p *PostGISIndex) Close() error {
	return p.db.Close()
}
