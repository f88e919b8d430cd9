package handlers

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mindmend/backend/internal/models"
	"github.com/mindmend/backend/internal/scores"
)

type therapyInfoRequest struct {
	ImageValue          *int    `json:"image_value"`
	GeneralEmotionValue *int    `json:"general_emotion_value"`
	RevaluationOne      *int    `json:"revaluation_one"`
	RevaluationTwo      *int    `json:"revaluation_two"`
	SelectedEmotions    []int64 `json:"selected_emotions"`
}

// TherapyInfo handles POST /user_therapy_info/.
func (h *Handler) TherapyInfo(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, u, err := h.authenticate(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	var in therapyInfoRequest
	if err := decodeJSON(req, "Failed to create user therapy info.", &in); err != nil {
		return h.fail(ctx, err), nil
	}

	res, err := h.scores.Submit(ctx, u.ID, scores.Submission{
		ImageValue:          in.ImageValue,
		GeneralEmotionValue: in.GeneralEmotionValue,
		RevaluationOne:      in.RevaluationOne,
		RevaluationTwo:      in.RevaluationTwo,
		Emotions:            in.SelectedEmotions,
	})
	if err != nil {
		return h.fail(ctx, err), nil
	}
	return respond(http.StatusCreated, "User therapy info created successfully.", newScoresView(u.Name, res)), nil
}

// ScoreRecords handles GET /score-records/.
func (h *Handler) ScoreRecords(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, u, err := h.authenticate(ctx, req)
	if err != nil {
		return h.fail(ctx, err), nil
	}

	records, err := h.scores.History(ctx, u.ID)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	if len(records) == 0 {
		return respond(http.StatusOK, "No score records for the user.", []recordView{}), nil
	}
	return respond(http.StatusOK, "Score records retrieved successfully.", newRecordViews(records)), nil
}

// ListEmotions handles GET /emotions/.
func (h *Handler) ListEmotions(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	emotions, err := h.scores.Emotions(ctx)
	if err != nil {
		return h.fail(ctx, err), nil
	}
	if emotions == nil {
		emotions = []models.Emotion{}
	}
	return respond(http.StatusOK, "Emotions retrieved successfully.", emotions), nil
}
