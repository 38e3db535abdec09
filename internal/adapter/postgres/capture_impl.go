package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
)

// CaptureRepoImpl provides a concrete implementation for the
// CaptureRepository interface using PostgreSQL.
type CaptureRepoImpl struct {
	db *pgxpool.Pool
}

// NewCaptureRepo creates a new instance of CaptureRepoImpl.
func NewCaptureRepo(db *pgxpool.Pool) *CaptureRepoImpl {
	return &CaptureRepoImpl{db: db}
}

// Save stores or updates a received capture. Re-delivery of the same
// capture_id replaces the payload and resets the imported marker, so
// the importer always sees the latest delivered bytes.
func (r *CaptureRepoImpl) Save(ctx context.Context, capture *entity.StoredCapture) error {
	query := `
		INSERT INTO captures (id, capture_id, url, payload, size_bytes, asset_count, received_at, imported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		ON CONFLICT (capture_id) DO UPDATE SET
			url = EXCLUDED.url,
			payload = EXCLUDED.payload,
			size_bytes = EXCLUDED.size_bytes,
			asset_count = EXCLUDED.asset_count,
			received_at = EXCLUDED.received_at,
			imported_at = NULL;
	`
	_, err := r.db.Exec(ctx, query,
		capture.ID,
		capture.CaptureID,
		capture.URL,
		capture.Payload,
		capture.SizeBytes,
		capture.AssetCount,
		capture.ReceivedAt,
	)
	return err
}

// FindByCaptureID retrieves one capture by its capture identity.
func (r *CaptureRepoImpl) FindByCaptureID(ctx context.Context, captureID string) (*entity.StoredCapture, error) {
	query := `
		SELECT id, capture_id, url, payload, size_bytes, asset_count, received_at, imported_at
		FROM captures
		WHERE capture_id = $1;
	`
	row := r.db.QueryRow(ctx, query, captureID)

	var c entity.StoredCapture
	err := row.Scan(
		&c.ID,
		&c.CaptureID,
		&c.URL,
		&c.Payload,
		&c.SizeBytes,
		&c.AssetCount,
		&c.ReceivedAt,
		&c.ImportedAt,
	)
	if err != nil {
		return nil, err // pgx.ErrNoRows will be returned if not found
	}
	return &c, nil
}

// ListPending retrieves captures the importer has not consumed yet,
// oldest first. Payload bytes are left out; the importer fetches each
// capture individually once it decides to import it.
func (r *CaptureRepoImpl) ListPending(ctx context.Context, limit int) ([]*entity.StoredCapture, error) {
	query := `
		SELECT id, capture_id, url, size_bytes, asset_count, received_at
		FROM captures
		WHERE imported_at IS NULL
		ORDER BY received_at ASC
		LIMIT $1;
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*entity.StoredCapture
	for rows.Next() {
		var c entity.StoredCapture
		if err := rows.Scan(
			&c.ID,
			&c.CaptureID,
			&c.URL,
			&c.SizeBytes,
			&c.AssetCount,
			&c.ReceivedAt,
		); err != nil {
			return nil, err
		}
		captures = append(captures, &c)
	}
	return captures, rows.Err()
}

// MarkImported records that the importer consumed a capture.
func (r *CaptureRepoImpl) MarkImported(ctx context.Context, captureID string) error {
	query := `UPDATE captures SET imported_at = NOW() WHERE capture_id = $1;`
	_, err := r.db.Exec(ctx, query, captureID)
	return err
}
