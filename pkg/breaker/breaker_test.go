package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("exec", WithConsecutiveFailures(2), WithOpenTimeout(time.Minute))
	calls := 0
	fail := func() (int, error) { calls++; return 0, errBoom }

	_, err := Execute(b, fail)
	assert.ErrorIs(t, err, errBoom)
	_, err = Execute(b, fail)
	assert.ErrorIs(t, err, errBoom)

	_, err = Execute(b, fail)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "open", b.State())
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	errClient := errors.New("bad request")
	b := New("exec", WithConsecutiveFailures(1), WithIgnore(func(err error) bool { return errors.Is(err, errClient) }))

	for i := 0; i < 3; i++ {
		_, err := Execute(b, func() (string, error) { return "", errClient })
		assert.ErrorIs(t, err, errClient)
	}
	v, err := Execute(b, func() (string, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, "closed", b.State())
}
