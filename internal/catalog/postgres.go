package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// EnsureSchema creates the catalog tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring catalog schema: %w", err)
	}
	return nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPgUUID(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}

const assetColumns = `id, name, description, price, tags, file_url, blob_id, object_ref,
	allowlist_id, cap_id, creator_address, COALESCE(preview_url, ''), created_at`

func scanAsset(row pgx.Row) (*Asset, error) {
	var (
		a    Asset
		pgID pgtype.UUID
	)
	err := row.Scan(&pgID, &a.Name, &a.Description, &a.Price, &a.Tags, &a.FileURL,
		&a.BlobID, &a.ObjectRef, &a.AllowlistID, &a.CapID, &a.CreatorAddress,
		&a.PreviewURL, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.ID = fromPgUUID(pgID)
	return &a, nil
}

// CreateAsset writes the catalog record produced by a successful publish.
func (s *PostgresStore) CreateAsset(ctx context.Context, params CreateAssetParams) (*Asset, error) {
	id := uuid.New()
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO assets (id, name, description, price, tags, file_url, blob_id,
			object_ref, allowlist_id, cap_id, creator_address, preview_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		RETURNING `+assetColumns,
		toPgUUID(id), params.Name, params.Description, params.Price, tags,
		params.FileURL, params.BlobID, params.ObjectRef, params.AllowlistID,
		params.CapID, params.CreatorAddress, params.PreviewURL)

	asset, err := scanAsset(row)
	if err != nil {
		return nil, fmt.Errorf("creating asset record: %w", err)
	}
	return asset, nil
}

// GetAsset fetches one asset by id.
func (s *PostgresStore) GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1`, toPgUUID(id))
	asset, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching asset %s: %w", id, err)
	}
	return asset, nil
}

// ListAssets pages through the catalog, newest first, with optional
// case-insensitive name filtering and tag containment.
func (s *PostgresStore) ListAssets(ctx context.Context, params ListAssetsParams) ([]Asset, int64, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+assetColumns+`, COUNT(*) OVER () AS total
		FROM assets
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR tags @> ARRAY[$2::text])
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		params.Name, params.Tag, limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var (
		assets []Asset
		total  int64
	)
	for rows.Next() {
		var (
			a    Asset
			pgID pgtype.UUID
		)
		err := rows.Scan(&pgID, &a.Name, &a.Description, &a.Price, &a.Tags, &a.FileURL,
			&a.BlobID, &a.ObjectRef, &a.AllowlistID, &a.CapID, &a.CreatorAddress,
			&a.PreviewURL, &a.CreatedAt, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("listing assets: %w", err)
		}
		a.ID = fromPgUUID(pgID)
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing assets: %w", err)
	}
	return assets, total, nil
}

// AttachPreview sets the preview locator on an existing record. This is the
// only mutation the core performs on a catalog record after publish.
func (s *PostgresStore) AttachPreview(ctx context.Context, id uuid.UUID, previewURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assets SET preview_url = $2 WHERE id = $1`, toPgUUID(id), previewURL)
	if err != nil {
		return fmt.Errorf("attaching preview to asset %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// CreatePurchase records a ledger-confirmed admission. Re-recording the same
// (asset, buyer) pair is a no-op.
func (s *PostgresStore) CreatePurchase(ctx context.Context, assetID uuid.UUID, userAddress string) (*Purchase, error) {
	var (
		p       Purchase
		pgID    pgtype.UUID
		pgAsset pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO purchases (id, asset_id, user_address)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_id, user_address)
			DO UPDATE SET user_address = EXCLUDED.user_address
		RETURNING id, asset_id, user_address, purchased_at`,
		toPgUUID(uuid.New()), toPgUUID(assetID), userAddress).
		Scan(&pgID, &pgAsset, &p.UserAddress, &p.PurchasedAt)
	if err != nil {
		return nil, fmt.Errorf("recording purchase of %s: %w", assetID, err)
	}
	p.ID = fromPgUUID(pgID)
	p.AssetID = fromPgUUID(pgAsset)
	return &p, nil
}

// ListPurchases pages through a buyer's purchases, newest first, joined
// with their asset records.
func (s *PostgresStore) ListPurchases(ctx context.Context, userAddress string, limit, offset int32) ([]Purchase, int64, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.asset_id, p.user_address, p.purchased_at,
			a.id, a.name, a.description, a.price, a.tags, a.file_url, a.blob_id,
			a.object_ref, a.allowlist_id, a.cap_id, a.creator_address,
			COALESCE(a.preview_url, ''), a.created_at,
			COUNT(*) OVER () AS total
		FROM purchases p
		JOIN assets a ON a.id = p.asset_id
		WHERE p.user_address = $1
		ORDER BY p.purchased_at DESC
		LIMIT $2 OFFSET $3`,
		userAddress, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing purchases for %s: %w", userAddress, err)
	}
	defer rows.Close()

	var (
		purchases []Purchase
		total     int64
	)
	for rows.Next() {
		var (
			p       Purchase
			a       Asset
			pgID    pgtype.UUID
			pgAsset pgtype.UUID
			pgAID   pgtype.UUID
		)
		err := rows.Scan(&pgID, &pgAsset, &p.UserAddress, &p.PurchasedAt,
			&pgAID, &a.Name, &a.Description, &a.Price, &a.Tags, &a.FileURL,
			&a.BlobID, &a.ObjectRef, &a.AllowlistID, &a.CapID, &a.CreatorAddress,
			&a.PreviewURL, &a.CreatedAt, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("listing purchases for %s: %w", userAddress, err)
		}
		p.ID = fromPgUUID(pgID)
		p.AssetID = fromPgUUID(pgAsset)
		a.ID = fromPgUUID(pgAID)
		p.Asset = &a
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing purchases for %s: %w", userAddress, err)
	}
	return purchases, total, nil
}

// HasPurchased reports whether a purchase record exists for the pair.
func (s *PostgresStore) HasPurchased(ctx context.Context, assetID uuid.UUID, userAddress string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE asset_id = $1 AND user_address = $2)`,
		toPgUUID(assetID), userAddress).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking purchase of %s: %w", assetID, err)
	}
	return exists, nil
}
