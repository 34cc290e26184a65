package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestProducerPublish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"user_id":1}` {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducer(sp)
	require.NoError(t, p.Publish("wallet_event", "1", `{"user_id":1}`))
	require.NoError(t, p.Close())
}

func TestProducerPublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducer(sp)
	err := p.Publish("wallet_event", "1", "{}")
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducerCloseNil(t *testing.T) {
	var p *Producer
	require.NoError(t, p.Close())
}
