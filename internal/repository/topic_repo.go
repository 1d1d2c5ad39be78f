package repository

import (
	"context"
	"database/sql"

	"github.com/ejournal-workflow-api/internal/database"
	"github.com/ejournal-workflow-api/internal/models"
)

type topicAreaRepo struct {
	db database.DBTX
}

// NewTopicAreaRepo creates a new topic area repository
func NewTopicAreaRepo(db database.DBTX) TopicAreaRepository {
	return &topicAreaRepo{db: db}
}

func (r *topicAreaRepo) Create(ctx context.Context, topic *models.TopicArea) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO topic_areas (id, name, slug) VALUES ($1, $2, $3)`,
		topic.ID, topic.Name, topic.Slug,
	)
	return wrapErr(err, "create topic area")
}

func (r *topicAreaRepo) GetByID(ctx context.Context, id string) (*models.TopicArea, error) {
	var t models.TopicArea
	err := r.db.QueryRowContext(ctx, `SELECT id, name, slug FROM topic_areas WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "get topic area")
	}
	return &t, nil
}

func (r *topicAreaRepo) List(ctx context.Context) ([]*models.TopicArea, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, slug FROM topic_areas ORDER BY name`)
	if err != nil {
		return nil, wrapErr(err, "list topic areas")
	}
	defer rows.Close()

	var topics []*models.TopicArea
	for rows.Next() {
		var t models.TopicArea
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}
