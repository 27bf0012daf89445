// Package postgres provides the Postgres-backed registry store.
//
// Expected schema:
//
//	CREATE TABLE resources (
//		id BIGSERIAL PRIMARY KEY,
//		uuid UUID NOT NULL,
//		full_url TEXT NOT NULL UNIQUE,
//		protocol TEXT NOT NULL,
//		domain TEXT NOT NULL,
//		domain_zone TEXT NOT NULL,
//		url_path TEXT NOT NULL DEFAULT '',
//		query_params JSONB,
//		unavailable_count INT NOT NULL DEFAULT 0,
//		screenshot BYTEA,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE resource_statuses (
//		id BIGSERIAL PRIMARY KEY,
//		resource_id BIGINT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
//		status_code INT,
//		is_available BOOLEAN NOT NULL,
//		observed_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE feed_events (
//		id BIGSERIAL PRIMARY KEY,
//		kind TEXT NOT NULL,
//		resource_id BIGINT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
//		resource_uuid UUID NOT NULL,
//		occurred_at TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE ingestion_jobs (
//		id UUID PRIMARY KEY,
//		token UUID NOT NULL,
//		status TEXT NOT NULL,
//		total INT NOT NULL DEFAULT 0,
//		processed INT NOT NULL DEFAULT 0,
//		error_count INT NOT NULL DEFAULT 0,
//		rejected_urls JSONB,
//		created_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements registry.Store on top of pgx.
type Store struct {
	pool pgxPool
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const resourceColumns = `id, uuid, full_url, protocol, domain, domain_zone, url_path,
	query_params, unavailable_count, created_at`

// Insert adds a new resource and assigns its ID.
func (s *Store) Insert(ctx context.Context, r *registry.Resource) error {
	params, err := json.Marshal(r.Query)
	if err != nil {
		return fmt.Errorf("marshal query params: %w", err)
	}
	query := `
		INSERT INTO resources (uuid, full_url, protocol, domain, domain_zone, url_path, query_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at;
	`
	err = s.pool.QueryRow(ctx, query,
		r.UUID, r.FullURL, r.Protocol, r.Domain, r.DomainZone, r.Path, params,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.ErrDuplicateResource
		}
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// BulkInsert persists the batch with one multi-row statement. A uniqueness
// violation fails the whole batch; the caller deduplicates beforehand.
func (s *Store) BulkInsert(ctx context.Context, rs []registry.Resource) error {
	if len(rs) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(rs)*7)
	)
	sb.WriteString(`INSERT INTO resources (uuid, full_url, protocol, domain, domain_zone, url_path, query_params) VALUES `)
	for i, r := range rs {
		params, err := json.Marshal(r.Query)
		if err != nil {
			return fmt.Errorf("marshal query params for %q: %w", r.FullURL, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, r.UUID, r.FullURL, r.Protocol, r.Domain, r.DomainZone, r.Path, params)
	}
	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		if isUniqueViolation(err) {
			return registry.ErrDuplicateResource
		}
		return fmt.Errorf("bulk insert resources: %w", err)
	}
	return nil
}

// FindByURL fetches a resource by its full URL.
func (s *Store) FindByURL(ctx context.Context, fullURL string) (registry.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE full_url = $1;`, resourceColumns)
	return s.scanResource(s.pool.QueryRow(ctx, query, fullURL))
}

// GetByUUID fetches a resource by external identifier.
func (s *Store) GetByUUID(ctx context.Context, id uuid.UUID) (registry.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE uuid = $1;`, resourceColumns)
	return s.scanResource(s.pool.QueryRow(ctx, query, id))
}

// List returns resources matching the filter, newest first.
func (s *Store) List(ctx context.Context, f registry.ListFilter) ([]registry.Resource, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM resources r
		LEFT JOIN LATERAL (
			SELECT is_available FROM resource_statuses st
			WHERE st.resource_id = r.id
			ORDER BY st.observed_at DESC, st.id DESC
			LIMIT 1
		) latest ON TRUE
		WHERE ($1::text = '' OR r.domain_zone = $1)
		  AND ($2::uuid IS NULL OR r.uuid = $2)
		  AND ($3::boolean IS NULL OR latest.is_available = $3)
		ORDER BY r.id DESC
		LIMIT $4::int OFFSET $5;
	`, prefixColumns("r", resourceColumns))

	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := s.pool.Query(ctx, query, f.DomainZone, f.UUID, f.Available, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()
	return s.collectResources(rows)
}

// ExistingURLs reports which of the given URLs are already registered.
func (s *Store) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	if len(urls) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT full_url FROM resources WHERE full_url = ANY($1);`, urls)
	if err != nil {
		return nil, fmt.Errorf("select existing urls: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan existing url: %w", err)
		}
		existing[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing urls: %w", err)
	}
	return existing, nil
}

// Delete removes the resource; owned rows cascade at the schema level.
func (s *Store) Delete(ctx context.Context, resourceID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1;`, resourceID)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// SetScreenshot stores image bytes on the resource.
func (s *Store) SetScreenshot(ctx context.Context, id uuid.UUID, image []byte) error {
	tag, err := s.pool.Exec(ctx, `UPDATE resources SET screenshot = $2 WHERE uuid = $1;`, id, image)
	if err != nil {
		return fmt.Errorf("set screenshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// RecordObservation applies one check outcome inside a transaction scoped to
// the resource, so concurrent sweeps cannot lose counter updates.
func (s *Store) RecordObservation(
	ctx context.Context,
	resourceID int64,
	obs registry.Observation,
) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin observation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var resourceUUID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT uuid FROM resources WHERE id = $1 FOR UPDATE;`, resourceID,
	).Scan(&resourceUUID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, registry.ErrNotFound
		}
		return false, fmt.Errorf("lock resource: %w", err)
	}

	var prevAvailable *bool
	err = tx.QueryRow(ctx, `
		SELECT is_available FROM resource_statuses
		WHERE resource_id = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT 1;
	`, resourceID).Scan(&prevAvailable)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("load previous status: %w", err)
	}
	changed := prevAvailable == nil || *prevAvailable != obs.IsAvailable

	_, err = tx.Exec(ctx, `
		INSERT INTO resource_statuses (resource_id, status_code, is_available, observed_at)
		VALUES ($1, $2, $3, $4);
	`, resourceID, obs.StatusCode, obs.IsAvailable, obs.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("append status record: %w", err)
	}

	var counterSQL string
	if obs.IsAvailable {
		counterSQL = `UPDATE resources SET unavailable_count = 0 WHERE id = $1;`
	} else {
		counterSQL = `UPDATE resources SET unavailable_count = unavailable_count + 1 WHERE id = $1;`
	}
	if _, err = tx.Exec(ctx, counterSQL, resourceID); err != nil {
		return false, fmt.Errorf("update unavailability counter: %w", err)
	}

	if changed {
		_, err = tx.Exec(ctx, `
			INSERT INTO feed_events (kind, resource_id, resource_uuid, occurred_at)
			VALUES ($1, $2, $3, $4);
		`, registry.EventStatusChanged, resourceID, resourceUUID, obs.ObservedAt)
		if err != nil {
			return false, fmt.Errorf("append status_changed event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit observation tx: %w", err)
	}
	return changed, nil
}

// LatestStatus returns the newest status record for the resource.
func (s *Store) LatestStatus(ctx context.Context, resourceID int64) (registry.StatusRecord, error) {
	var rec registry.StatusRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, resource_id, status_code, is_available, observed_at
		FROM resource_statuses
		WHERE resource_id = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT 1;
	`, resourceID).Scan(&rec.ID, &rec.ResourceID, &rec.StatusCode, &rec.IsAvailable, &rec.ObservedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.StatusRecord{}, registry.ErrNotFound
		}
		return registry.StatusRecord{}, fmt.Errorf("load latest status: %w", err)
	}
	return rec, nil
}

// ListUnavailable returns resources whose counter reached the threshold.
func (s *Store) ListUnavailable(ctx context.Context, threshold int) ([]registry.Resource, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM resources WHERE unavailable_count >= $1 ORDER BY id;`,
		resourceColumns,
	)
	rows, err := s.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("list unavailable resources: %w", err)
	}
	defer rows.Close()
	return s.collectResources(rows)
}

// AppendEvent records a feed event.
func (s *Store) AppendEvent(ctx context.Context, ev registry.FeedEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_events (kind, resource_id, resource_uuid, occurred_at)
		VALUES ($1, $2, $3, $4);
	`, ev.Kind, ev.ResourceID, ev.ResourceUUID, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("append feed event: %w", err)
	}
	return nil
}

// CreateJob persists a fresh ingestion job.
func (s *Store) CreateJob(ctx context.Context, job *registry.IngestionJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	rejected, err := json.Marshal(job.RejectedURLs)
	if err != nil {
		return fmt.Errorf("marshal rejected urls: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ingestion_jobs (id, token, status, total, processed, error_count, rejected_urls, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, job.ID, job.Token, job.Status, job.Total, job.Processed, job.ErrorCount, rejected, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create ingestion job: %w", err)
	}
	return nil
}

// GetJob loads an ingestion job.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (registry.IngestionJob, error) {
	var (
		job      registry.IngestionJob
		rejected []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, token, status, total, processed, error_count, rejected_urls, created_at, finished_at
		FROM ingestion_jobs
		WHERE id = $1;
	`, id).Scan(
		&job.ID, &job.Token, &job.Status, &job.Total, &job.Processed,
		&job.ErrorCount, &rejected, &job.CreatedAt, &job.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.IngestionJob{}, registry.ErrNotFound
		}
		return registry.IngestionJob{}, fmt.Errorf("get ingestion job: %w", err)
	}
	if len(rejected) > 0 {
		if err := json.Unmarshal(rejected, &job.RejectedURLs); err != nil {
			return registry.IngestionJob{}, fmt.Errorf("unmarshal rejected urls: %w", err)
		}
	}
	return job, nil
}

// SaveJob overwrites the mutable fields of an ingestion job.
func (s *Store) SaveJob(ctx context.Context, job registry.IngestionJob) error {
	rejected, err := json.Marshal(job.RejectedURLs)
	if err != nil {
		return fmt.Errorf("marshal rejected urls: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingestion_jobs
		SET status = $2, total = $3, processed = $4, error_count = $5, rejected_urls = $6, finished_at = $7
		WHERE id = $1;
	`, job.ID, job.Status, job.Total, job.Processed, job.ErrorCount, rejected, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("save ingestion job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) scanResource(row pgx.Row) (registry.Resource, error) {
	var (
		r      registry.Resource
		params []byte
	)
	err := row.Scan(
		&r.ID, &r.UUID, &r.FullURL, &r.Protocol, &r.Domain, &r.DomainZone,
		&r.Path, &params, &r.UnavailableCount, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.Resource{}, registry.ErrNotFound
		}
		return registry.Resource{}, fmt.Errorf("scan resource: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Query); err != nil {
			return registry.Resource{}, fmt.Errorf("unmarshal query params: %w", err)
		}
	}
	return r, nil
}

func (s *Store) collectResources(rows pgx.Rows) ([]registry.Resource, error) {
	var out []registry.Resource
	for rows.Next() {
		r, err := s.scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// prefixColumns qualifies each column in list with the given alias.
func prefixColumns(alias, list string) string {
	cols := strings.Split(list, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
