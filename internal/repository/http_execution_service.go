package repository

import (
	"context"
	"errors"
	"net/http"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/breaker"
	pkghttp "TradeLoop/pkg/http"
	applogger "TradeLoop/pkg/logger"
)

// HTTPExecutionService submits intents to the execution venue gateway. The intent id is
// sent as the idempotency key, so a replayed intent is answered with 409.
type HTTPExecutionService struct {
	client *pkghttp.Client
	cb     *breaker.Breaker
	l      *applogger.Logger
}

func NewHTTPExecutionService(client *pkghttp.Client, cb *breaker.Breaker, l *applogger.Logger) *HTTPExecutionService {
	return &HTTPExecutionService{client: client, cb: cb, l: l}
}

// IsRefusal reports a 4xx answer: the venue understood the intent and declined it.
// Refusals do not count against the circuit breaker.
func IsRefusal(err error) bool {
	var se *pkghttp.StatusError
	return errors.As(err, &se) && !se.Retryable()
}

func (s *HTTPExecutionService) Submit(ctx context.Context, intent models.ExecutionIntent) (models.ExecutionResult, error) {
	start := time.Now()
	res, err := breaker.Execute(s.cb, func() (models.ExecutionResult, error) {
		var out models.ExecutionResult
		err := s.client.Do(ctx, pkghttp.RequestOptions{
			Method:  http.MethodPost,
			Path:    "/v1/intents",
			Headers: map[string]string{"Idempotency-Key": intent.IntentID},
			Body:    intent,
		}, &out)
		return out, err
	})

	var se *pkghttp.StatusError
	switch {
	case err == nil:
		if res.IntentID == "" {
			res.IntentID = intent.IntentID
		}
	case errors.As(err, &se) && se.Code == http.StatusConflict:
		res, err = models.ExecutionResult{IntentID: intent.IntentID, Accepted: true, Message: "already accepted"}, nil
	case IsRefusal(err):
		res, err = models.ExecutionResult{IntentID: intent.IntentID, Accepted: false, Message: se.Body}, nil
	}

	fields := []applogger.Field{
		applogger.String("intent_id", intent.IntentID),
		applogger.String("strategy_id", intent.StrategyID),
		applogger.Float64("size", intent.Size),
		applogger.String("breaker", s.cb.State()),
		applogger.Duration("duration_ms", time.Since(start)),
	}
	if err != nil {
		s.l.Error("execution submit failed", append(fields, applogger.Error(err))...)
		return models.ExecutionResult{}, err
	}
	s.l.Info("execution submit", append(fields, applogger.Bool("accepted", res.Accepted))...)
	return res, nil
}

var _ domrepo.ExecutionService = (*HTTPExecutionService)(nil)
