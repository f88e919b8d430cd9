package scores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mindmend/backend/internal/db"
	"github.com/mindmend/backend/internal/models"
)

// PostgresStore persists Scores and ScoreRecords.
type PostgresStore struct {
	conn *sql.DB
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (p *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return db.InTx(ctx, p.conn, func(q db.Querier) error {
		return fn(&pgTx{q: q})
	})
}

func (p *PostgresStore) ScoreRecords(ctx context.Context, userID string) ([]models.ScoreRecord, error) {
	rows, err := p.conn.QueryContext(ctx, `
		SELECT r.id, r.image_value, r.general_emotion_value, r.revaluation_one, r.revaluation_two, r.created_at,
		       COALESCE(array_agg(e.id ORDER BY e.name) FILTER (WHERE e.id IS NOT NULL), '{}'),
		       COALESCE(array_agg(e.name ORDER BY e.name) FILTER (WHERE e.id IS NOT NULL), '{}')
		FROM score_records r
		LEFT JOIN score_record_emotions re ON re.score_record_id = r.id
		LEFT JOIN emotions e ON e.id = re.emotion_id
		WHERE r.user_id = $1
		GROUP BY r.id
		ORDER BY r.created_at, r.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoreRecord
	for rows.Next() {
		var (
			r     models.ScoreRecord
			ids   pq.Int64Array
			names pq.StringArray
		)
		if err := rows.Scan(
			&r.ID,
			&r.Ratings.ImageValue,
			&r.Ratings.GeneralEmotionValue,
			&r.Ratings.RevaluationOne,
			&r.Ratings.RevaluationTwo,
			&r.CreatedAt,
			&ids,
			&names,
		); err != nil {
			return nil, err
		}
		if len(ids) != len(names) {
			return nil, fmt.Errorf("score record %s: %d emotion ids for %d names", r.ID, len(ids), len(names))
		}
		r.UserID = userID
		r.Emotions = make([]models.Emotion, len(ids))
		for i := range ids {
			r.Emotions[i] = models.Emotion{ID: ids[i], Name: names[i]}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Emotions(ctx context.Context) ([]models.Emotion, error) {
	return queryEmotions(ctx, p.conn, `SELECT id, name FROM emotions ORDER BY name`)
}

type pgTx struct {
	q db.Querier
}

func (t *pgTx) CurrentScores(ctx context.Context, userID string) (*models.Scores, error) {
	s := models.Scores{UserID: userID}
	err := t.q.QueryRowContext(ctx, `
		SELECT id, image_value, general_emotion_value, revaluation_one, revaluation_two, updated_at
		FROM scores
		WHERE user_id = $1
		FOR UPDATE`,
		userID,
	).Scan(
		&s.ID,
		&s.Ratings.ImageValue,
		&s.Ratings.GeneralEmotionValue,
		&s.Ratings.RevaluationOne,
		&s.Ratings.RevaluationTwo,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Emotions, err = queryEmotions(ctx, t.q, `
		SELECT e.id, e.name
		FROM scores_emotions se
		JOIN emotions e ON e.id = se.emotion_id
		WHERE se.scores_id = $1
		ORDER BY e.name`,
		s.ID,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) ResolveEmotions(ctx context.Context, ids []int64) ([]models.Emotion, error) {
	if len(ids) == 0 {
		return []models.Emotion{}, nil
	}
	return queryEmotions(ctx, t.q, `SELECT id, name FROM emotions WHERE id = ANY($1) ORDER BY name`, pq.Array(ids))
}

func (t *pgTx) SaveScores(ctx context.Context, s *models.Scores) error {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO scores (id, user_id, image_value, general_emotion_value, revaluation_one, revaluation_two, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			image_value = EXCLUDED.image_value,
			general_emotion_value = EXCLUDED.general_emotion_value,
			revaluation_one = EXCLUDED.revaluation_one,
			revaluation_two = EXCLUDED.revaluation_two,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		s.ID, s.UserID,
		s.Ratings.ImageValue, s.Ratings.GeneralEmotionValue, s.Ratings.RevaluationOne, s.Ratings.RevaluationTwo,
		s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return err
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM scores_emotions WHERE scores_id = $1`, s.ID); err != nil {
		return err
	}
	if len(s.Emotions) == 0 {
		return nil
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO scores_emotions (scores_id, emotion_id)
		SELECT $1, unnest($2::bigint[])`,
		s.ID, pq.Array(models.EmotionIDs(s.Emotions)),
	)
	return err
}

func (t *pgTx) AppendRecord(ctx context.Context, r *models.ScoreRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO score_records (id, user_id, image_value, general_emotion_value, revaluation_one, revaluation_two, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.UserID,
		r.Ratings.ImageValue, r.Ratings.GeneralEmotionValue, r.Ratings.RevaluationOne, r.Ratings.RevaluationTwo,
		r.CreatedAt,
	)
	if err != nil {
		return err
	}
	if len(r.Emotions) == 0 {
		return nil
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO score_record_emotions (score_record_id, emotion_id)
		SELECT $1, unnest($2::bigint[])`,
		r.ID, pq.Array(models.EmotionIDs(r.Emotions)),
	)
	return err
}

func queryEmotions(ctx context.Context, q db.Querier, query string, args ...any) ([]models.Emotion, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Emotion{}
	for rows.Next() {
		var e models.Emotion
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
