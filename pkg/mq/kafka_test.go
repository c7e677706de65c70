package mq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageWritesJSON(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got map[string]string
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got["event"] != "chatroom:created" {
			return errors.New("unexpected payload: " + string(val))
		}
		return nil
	})

	p := NewKafkaProducerFrom(sp, "groupchat-events", nil)
	err := p.SendMessage("global", map[string]string{"event": "chatroom:created"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestSendMessageKeyAndTopic(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "room:42" || msg.Topic != "events" {
			return errors.New("unexpected key or topic")
		}
		return nil
	})

	p := NewKafkaProducerFrom(sp, "events", nil)
	require.NoError(t, p.SendMessage("room:42", struct{}{}))
	require.NoError(t, p.Close())
}

func TestSendMessageFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaProducerFrom(sp, "events", nil)
	err := p.SendMessage("global", "x")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestSendMessageUnencodable(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewKafkaProducerFrom(sp, "events", nil)

	err := p.SendMessage("global", make(chan int))
	assert.Error(t, err)
	require.NoError(t, p.Close())
}
