package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/domain/model"
)

func finishedJob(status model.JobStatus, reason model.FailureReason) *model.Job {
	key := "J1/abc"
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.Job{
		ID:            "J1",
		WorkflowID:    "W1",
		UserID:        "U1",
		Kind:          model.JobKindServiceUnits,
		StorageKey:    &key,
		Status:        status,
		FailureReason: reason,
		CompletedAt:   &done,
	}
}

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestTelegramSendsMessage(t *testing.T) {
	l := zerolog.Nop()
	s := &fakeSender{}
	n := newTelegram(s, 42, &l)

	require.NoError(t, n.JobFinished(context.Background(), finishedJob(model.JobStatusFailed, model.FailureProcessor)))
	require.Len(t, s.sent, 1)
	msg, ok := s.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.True(t, strings.Contains(msg.Text, "failed (processor_failed)"), msg.Text)
}

func TestTelegramSendError(t *testing.T) {
	l := zerolog.Nop()
	n := newTelegram(&fakeSender{err: errors.New("403")}, 42, &l)
	assert.Error(t, n.JobFinished(context.Background(), finishedJob(model.JobStatusSuccessful, "")))
}

func TestNATSPublishesEvent(t *testing.T) {
	l := zerolog.Nop()
	p := &fakePublisher{}
	n := newNATS(p, "", &l)

	require.NoError(t, n.JobFinished(context.Background(), finishedJob(model.JobStatusSuccessful, "")))
	assert.Equal(t, "jobs.finished", p.subject)

	var ev JobEvent
	require.NoError(t, json.Unmarshal(p.data, &ev))
	assert.Equal(t, "J1", ev.JobID)
	assert.Equal(t, model.JobStatusSuccessful, ev.Status)
	assert.Equal(t, "J1/abc", ev.StorageKey)
	assert.Empty(t, ev.FailureReason)
	require.NoError(t, n.Close())
}

func TestMultiJoinsErrors(t *testing.T) {
	l := zerolog.Nop()
	ok := &fakePublisher{}
	m := Multi{
		newTelegram(&fakeSender{err: errors.New("telegram down")}, 1, &l),
		newNATS(ok, "jobs.finished", &l),
		newNATS(&fakePublisher{err: errors.New("nats down")}, "jobs.finished", &l),
	}
	err := m.JobFinished(context.Background(), finishedJob(model.JobStatusSuccessful, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram down")
	assert.Contains(t, err.Error(), "nats down")
	assert.NotEmpty(t, ok.data, "a failing notifier must not stop the others")
}

func TestNewSelectsDriver(t *testing.T) {
	l := zerolog.Nop()

	n, closeFn, err := New(config.NotifyConfig{Driver: "none"}, &l)
	require.NoError(t, err)
	assert.IsType(t, &Noop{}, n)
	assert.NoError(t, closeFn())

	_, _, err = New(config.NotifyConfig{Driver: "telegram"}, &l)
	assert.Error(t, err, "telegram without token")

	_, _, err = New(config.NotifyConfig{Driver: "smtp"}, &l)
	assert.Error(t, err)
}
