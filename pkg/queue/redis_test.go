package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"TradeLoop/pkg/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordJob struct {
	got []string
	err error
}

func (j *recordJob) Name() string { return "record" }
func (j *recordJob) Type() string { return "alert" }
func (j *recordJob) Handle(_ context.Context, payload []byte) error {
	v, err := Decode[map[string]string](payload)
	if err != nil {
		return err
	}
	j.got = append(j.got, v["message"])
	return j.err
}

func TestProcessDeliversPayload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{}, db, ModeConsumerOnly, WithKeyPrefix("tl"))
	job := &recordJob{}
	q.RegisterJob(job)

	q.process(Message{ID: "1", Type: "alert", Payload: json.RawMessage(`{"message":"hi"}`)})

	assert.Equal(t, []string{"hi"}, job.got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDeadLettersAfterRetryLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{RetryLimit: 0}, db, ModeConsumerOnly, WithKeyPrefix("tl"))
	q.RegisterJob(&recordJob{err: errors.New("webhook down")})

	mock.Regexp().ExpectLPush("tl:dlq", `"id":"1".*"type":"alert"`).SetVal(1)
	q.process(Message{ID: "1", Type: "alert", Payload: json.RawMessage(`{"message":"x"}`)})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRequiresRunning(t *testing.T) {
	db, _ := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{}, db, ModeProducerOnly)
	err := q.PublishMessage(context.Background(), "alert", map[string]string{"message": "x"})
	require.Error(t, err)
}

func TestPublishPushesEnvelope(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{}, db, ModeProducerOnly, WithKeyPrefix("tl"))

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, q.Start(context.Background()))

	mock.Regexp().ExpectLPush("tl:messages", `.*"type":"alert".*`).SetVal(1)
	require.NoError(t, q.PublishMessage(context.Background(), "alert", map[string]string{"message": "x"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessSchedulesRetryBelowLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, Config{RetryLimit: 2}, db, ModeConsumerOnly, WithKeyPrefix("tl"))
	q.RegisterJob(&recordJob{err: errors.New("webhook down")})

	mock.CustomMatch(func(expected, actual []interface{}) error {
		if actual[1] != "tl:retry" {
			return fmt.Errorf("unexpected key %v", actual[1])
		}
		member, _ := actual[3].(string)
		if !strings.Contains(member, `"attempts":1`) {
			return fmt.Errorf("unexpected member %v", actual[3])
		}
		return nil
	}).ExpectZAdd("tl:retry", redis.Z{}).SetVal(1)
	q.process(Message{ID: "1", Type: "alert", Payload: json.RawMessage(`{"message":"x"}`)})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDropsUnencodableMessage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "queue.log")
	l, err := logger.New(&logger.Config{Level: "debug", Format: "json", Output: out})
	require.NoError(t, err)
	db, _ := redismock.NewClientMock()
	q := NewRedisQueue(l, Config{}, db, ModeConsumerOnly, WithKeyPrefix("tl"))

	// unknown type is dead-lettered, but the raw payload is not valid JSON
	q.process(Message{ID: "2", Type: "unknown", Payload: json.RawMessage(`{broken`)})

	logged, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "marshal dead letter")
	assert.NotContains(t, string(logged), "lpush dlq")
}
