package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"reviewdash/pkg/utils"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func TestKafkaPublisher_PublishIngest(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: zaptest.NewLogger(t)}

	err := p.PublishIngest(context.Background(), IngestEvent{
		RunID:    "run-1",
		Source:   "app",
		AppID:    "123",
		Inserted: 7,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "app:123", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, IngestCompletedType, string(msg.Headers[0].Value))

	var ev IngestEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, IngestCompletedType, ev.Type)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, 7, ev.Inserted)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, logger: zaptest.NewLogger(t)}

	err := p.PublishIngest(context.Background(), IngestEvent{Source: "play", AppID: "com.example"})
	assert.ErrorContains(t, err, "broker down")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: zaptest.NewLogger(t)}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	err := p.PublishIngest(context.Background(), IngestEvent{Source: "app", AppID: "1"})
	assert.Error(t, err)
	assert.Empty(t, w.msgs)
}

func TestNewPublisher_NoBrokers(t *testing.T) {
	p := NewPublisher(utils.KafkaConfig{}, zaptest.NewLogger(t))
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.PublishIngest(context.Background(), IngestEvent{}))
}
