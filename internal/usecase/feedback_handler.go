package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	pkgkafka "TradeLoop/pkg/kafka"
	"TradeLoop/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// FeedbackHandler applies settled trade outcomes to the parameter store. The running cycle
// read its parameters at start, so an update only reaches the next cycle.
type FeedbackHandler struct {
	topic    string
	store    domrepo.ParameterStore
	log      *logger.Logger
	validate *validator.Validate
}

func NewFeedbackHandler(l *logger.Logger, topic string, store domrepo.ParameterStore) *FeedbackHandler {
	return &FeedbackHandler{topic: topic, store: store, log: l, validate: validator.New()}
}

func (h *FeedbackHandler) Topic() string { return h.topic }

func (h *FeedbackHandler) Handle(ctx context.Context, b []byte) error {
	var fb models.Feedback
	if err := json.Unmarshal(b, &fb); err != nil {
		return fmt.Errorf("decode feedback: %w", err)
	}
	if err := h.validate.Struct(fb); err != nil {
		return fmt.Errorf("invalid feedback: %w", err)
	}
	p, err := h.store.Apply(ctx, fb)
	if err != nil {
		return fmt.Errorf("apply feedback %s: %w", fb.CycleID, err)
	}
	h.log.Info("parameters updated",
		logger.String("cycle_id", fb.CycleID),
		logger.String("strategy_id", fb.StrategyID),
		logger.Float64("pnl", fb.PnL),
		logger.Int64("version", p.Version),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*FeedbackHandler)(nil)
