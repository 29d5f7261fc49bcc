package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRunOnce(t *testing.T) {
	svc := newChatService(newMemStore(), &fakeGenerator{chunks: []string{"x"}})
	_, err := svc.Submit(context.Background(), anon, SubmitInput{Content: "hi"}, nil)
	require.NoError(t, err)

	sw, err := NewSweeper(svc, "@every 1m", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, sw.RunOnce(time.Now()))
	assert.Equal(t, 1, sw.RunOnce(time.Now().Add(time.Hour)))

	sw.Start()
	<-sw.Stop().Done()
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(newChatService(newMemStore(), &fakeGenerator{}), "not a schedule", time.Minute)
	assert.Error(t, err)
}
