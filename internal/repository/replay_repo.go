package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

type replayRepo struct {
	db database.DBTX
}

// NewReplayRepo creates a new request replay repository
func NewReplayRepo(db database.DBTX) ReplayRepository {
	return &replayRepo{db: db}
}

func (r *replayRepo) Get(ctx context.Context, actorID, key string) (*models.RequestReplay, error) {
	var rp models.RequestReplay
	err := r.db.QueryRowContext(ctx, `
		SELECT actor_id, key, method, path, status_code, body, created_at
		FROM request_replays WHERE actor_id = $1 AND key = $2
	`, actorID, key).Scan(&rp.ActorID, &rp.Key, &rp.Method, &rp.Path, &rp.StatusCode, &rp.Body, &rp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get request replay")
	}
	return &rp, nil
}

func (r *replayRepo) Reserve(ctx context.Context, rp *models.RequestReplay, staleBefore time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO request_replays (actor_id, key, method, path, status_code, body, created_at)
		VALUES ($1, $2, $3, $4, 0, '', $5)
		ON CONFLICT (actor_id, key) DO UPDATE
		SET method = EXCLUDED.method, path = EXCLUDED.path, created_at = EXCLUDED.created_at
		WHERE request_replays.status_code = 0 AND request_replays.created_at < $6
	`, rp.ActorID, rp.Key, rp.Method, rp.Path, rp.CreatedAt, staleBefore)
	if err != nil {
		return false, wrapErr(err, "reserve request replay")
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Save stores the first response for a key, filling its placeholder if one
// exists; later saves for the same key are ignored
func (r *replayRepo) Save(ctx context.Context, rp *models.RequestReplay) error {
	body := rp.Body
	if body == nil {
		body = []byte{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO request_replays (actor_id, key, method, path, status_code, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (actor_id, key) DO UPDATE
		SET status_code = EXCLUDED.status_code, body = EXCLUDED.body
		WHERE request_replays.status_code = 0
	`, rp.ActorID, rp.Key, rp.Method, rp.Path, rp.StatusCode, body, rp.CreatedAt)
	return wrapErr(err, "save request replay")
}

// Release drops an unfinished placeholder so the client can retry the key
func (r *replayRepo) Release(ctx context.Context, actorID, key string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM request_replays WHERE actor_id = $1 AND key = $2 AND status_code = 0
	`, actorID, key)
	return wrapErr(err, "release request replay")
}
