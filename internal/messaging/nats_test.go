package messaging

import (
	"context"
	"testing"

	"github.com/Misgexx/mintguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNATS_DisabledWithoutURL(t *testing.T) {
	client, err := NewNATS(context.Background(), config.NATS{})

	require.NoError(t, err)
	assert.Nil(t, client)
	client.Close()
}

func TestNewNATS_RequiresStream(t *testing.T) {
	_, err := NewNATS(context.Background(), config.NATS{URL: "nats://127.0.0.1:4222", SubjectPrefix: "payments"})

	assert.EqualError(t, err, "nats: stream and subject_prefix are required")
}

func TestPublish_NilClient(t *testing.T) {
	var client *NATSClient

	assert.Error(t, client.Publish(context.Background(), "payments.payment.captured", []byte(`{}`), "id"))
}

func TestStreamSubjects(t *testing.T) {
	assert.Equal(t, []string{"payments.>"}, streamSubjects(config.NATS{SubjectPrefix: "payments"}))
}
