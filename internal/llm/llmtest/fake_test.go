package llmtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeQueueAndRules(t *testing.T) {
	boom := errors.New("boom")
	f := New("first").Fail(boom).On("classify", "view")
	ctx := context.Background()

	out, err := f.Complete(ctx, "please classify", "x")
	require.NoError(t, err)
	assert.Equal(t, "view", out)

	out, err = f.Complete(ctx, "other", "x")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = f.Complete(ctx, "other", "x")
	assert.ErrorIs(t, err, boom)

	_, err = f.Complete(ctx, "other", "x")
	assert.ErrorIs(t, err, ErrExhausted)

	assert.Len(t, f.Calls(), 4)
}
