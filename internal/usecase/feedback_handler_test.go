package usecase

import (
	"context"
	"errors"
	"testing"

	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockParamStore struct{ mock.Mock }

func (m *mockParamStore) Current(ctx context.Context) (models.Parameters, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Parameters), args.Error(1)
}

func (m *mockParamStore) Apply(ctx context.Context, fb models.Feedback) (models.Parameters, error) {
	args := m.Called(ctx, fb)
	return args.Get(0).(models.Parameters), args.Error(1)
}

func TestFeedbackHandlerAppliesFeedback(t *testing.T) {
	store := &mockParamStore{}
	store.On("Apply", mock.Anything, mock.MatchedBy(func(fb models.Feedback) bool {
		return fb.CycleID == "c1" && fb.PnL == 120.5 && len(fb.Producers) == 2
	})).Return(models.Parameters{Version: 8}, nil).Once()

	h := NewFeedbackHandler(logger.NewNop(), "tradeloop.outcomes", store)
	assert.Equal(t, "tradeloop.outcomes", h.Topic())

	err := h.Handle(context.Background(), []byte(`{"cycle_id":"c1","strategy_id":"momentum","pnl":120.5,"producers":["technical","flow"]}`))
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestFeedbackHandlerRejectsBadPayloads(t *testing.T) {
	store := &mockParamStore{}
	h := NewFeedbackHandler(logger.NewNop(), "outcomes", store)

	assert.Error(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"strategy_id":"momentum"}`)))
	store.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestFeedbackHandlerPropagatesStoreError(t *testing.T) {
	store := &mockParamStore{}
	store.On("Apply", mock.Anything, mock.Anything).Return(models.Parameters{}, errors.New("conflict"))
	h := NewFeedbackHandler(logger.NewNop(), "outcomes", store)

	err := h.Handle(context.Background(), []byte(`{"cycle_id":"c1","strategy_id":"momentum"}`))
	assert.ErrorContains(t, err, "conflict")
}
