// Package scores keeps each user's current self-assessment and the
// append-only history of every version of it.
//
// Every successful write of a user's Scores appends exactly one ScoreRecord
// holding the post-write ratings and emotions, inside the same transaction.
package scores

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/models"
)

const (
	minRating     = 1
	maxRating     = 10
	defaultRating = 1
)

const submitFailed = "Failed to create user therapy info."

// Tx is the transactional view used by Submit.
type Tx interface {
	// CurrentScores returns the user's Scores locked for update, or nil.
	CurrentScores(ctx context.Context, userID string) (*models.Scores, error)
	// ResolveEmotions returns the emotions among ids that exist, ordered by name.
	ResolveEmotions(ctx context.Context, ids []int64) ([]models.Emotion, error)
	// SaveScores upserts s by user and replaces its emotion links. s.ID is
	// set to the stored row id.
	SaveScores(ctx context.Context, s *models.Scores) error
	AppendRecord(ctx context.Context, r *models.ScoreRecord) error
}

type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	ScoreRecords(ctx context.Context, userID string) ([]models.ScoreRecord, error)
	Emotions(ctx context.Context) ([]models.Emotion, error)
}

// Submission is one therapy-info write. Nil ratings keep their current value
// (1 on the first write). A nil Emotions keeps the current set; an empty
// non-nil slice clears it.
type Submission struct {
	ImageValue          *int
	GeneralEmotionValue *int
	RevaluationOne      *int
	RevaluationTwo      *int
	Emotions            []int64
}

// Result is the state after a Submit.
type Result struct {
	Scores models.Scores
	Record models.ScoreRecord
}

type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now, newID: uuid.NewString}
}

// Submit writes the user's current Scores and appends its snapshot.
// Validation failures leave both untouched.
func (s *Service) Submit(ctx context.Context, userID string, sub Submission) (*Result, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	var res Result
	err := s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.CurrentScores(ctx, userID)
		if err != nil {
			return fmt.Errorf("load current scores: %w", err)
		}

		next := models.Scores{
			UserID: userID,
			Ratings: models.Ratings{
				ImageValue:          defaultRating,
				GeneralEmotionValue: defaultRating,
				RevaluationOne:      defaultRating,
				RevaluationTwo:      defaultRating,
			},
		}
		var emotionIDs []int64
		if current != nil {
			next.ID = current.ID
			next.Ratings = current.Ratings
			emotionIDs = models.EmotionIDs(current.Emotions)
		} else {
			next.ID = s.newID()
		}
		sub.apply(&next.Ratings)
		if sub.Emotions != nil {
			emotionIDs = dedupe(sub.Emotions)
		}

		emotions, err := tx.ResolveEmotions(ctx, emotionIDs)
		if err != nil {
			return fmt.Errorf("resolve emotions: %w", err)
		}
		if missing := missingIDs(emotionIDs, emotions); len(missing) > 0 {
			verr := apierr.Validation(submitFailed, nil)
			for _, id := range missing {
				verr.WithField("selected_emotions", fmt.Sprintf("Invalid pk %q - object does not exist.", strconv.FormatInt(id, 10)))
			}
			return verr
		}
		next.Emotions = emotions
		next.UpdatedAt = s.now().UTC()

		if err := tx.SaveScores(ctx, &next); err != nil {
			return fmt.Errorf("save scores: %w", err)
		}

		record := models.ScoreRecord{
			ID:        s.newID(),
			UserID:    userID,
			Ratings:   next.Ratings,
			Emotions:  append([]models.Emotion(nil), next.Emotions...),
			CreatedAt: next.UpdatedAt,
		}
		if err := tx.AppendRecord(ctx, &record); err != nil {
			return fmt.Errorf("append score record: %w", err)
		}

		res = Result{Scores: next, Record: record}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// History returns the user's snapshots that carry at least one emotion,
// oldest first. Records without emotions are kept in storage but not listed.
func (s *Service) History(ctx context.Context, userID string) ([]models.ScoreRecord, error) {
	records, err := s.store.ScoreRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list score records: %w", err)
	}

	out := make([]models.ScoreRecord, 0, len(records))
	for _, r := range records {
		if len(r.Emotions) > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Emotions lists the emotion catalog.
func (s *Service) Emotions(ctx context.Context) ([]models.Emotion, error) {
	emotions, err := s.store.Emotions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list emotions: %w", err)
	}
	return emotions, nil
}

func (sub Submission) validate() error {
	var verr *apierr.Error
	check := func(field string, v *int) {
		if v == nil || (*v >= minRating && *v <= maxRating) {
			return
		}
		if verr == nil {
			verr = apierr.Validation(submitFailed, nil)
		}
		verr.WithField(field, fmt.Sprintf("Ensure this value is between %d and %d.", minRating, maxRating))
	}
	check("image_value", sub.ImageValue)
	check("general_emotion_value", sub.GeneralEmotionValue)
	check("revaluation_one", sub.RevaluationOne)
	check("revaluation_two", sub.RevaluationTwo)
	if verr != nil {
		return verr
	}
	return nil
}

func (sub Submission) apply(r *models.Ratings) {
	if sub.ImageValue != nil {
		r.ImageValue = *sub.ImageValue
	}
	if sub.GeneralEmotionValue != nil {
		r.GeneralEmotionValue = *sub.GeneralEmotionValue
	}
	if sub.RevaluationOne != nil {
		r.RevaluationOne = *sub.RevaluationOne
	}
	if sub.RevaluationTwo != nil {
		r.RevaluationTwo = *sub.RevaluationTwo
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func missingIDs(want []int64, got []models.Emotion) []int64 {
	found := make(map[int64]bool, len(got))
	for _, e := range got {
		found[e.ID] = true
	}
	var missing []int64
	for _, id := range want {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
