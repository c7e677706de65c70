package mq

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaProducer 把实时事件镜像到 Kafka topic, key 决定分区
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

// NewKafkaProducer 连接 brokers 并创建同步生产者
//
// Parameters:
//   - brokers: Kafka broker 地址列表
//   - topic: 写入的 topic
//   - log: 日志记录器, 为 nil 时不输出
//
// Returns:
//   - *KafkaProducer: 生产者
//   - error: 连接失败时返回
func NewKafkaProducer(brokers []string, topic string, log *zap.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}
	return NewKafkaProducerFrom(producer, topic, log), nil
}

// NewKafkaProducerFrom 使用已有的 SyncProducer, 测试中传入 mocks
func NewKafkaProducerFrom(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaProducer {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaProducer{producer: producer, topic: topic, log: log}
}

// SendMessage 序列化为 JSON 后同步写入
func (k *KafkaProducer) SendMessage(key string, message any) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到 kafka 失败: %w", err)
	}

	k.log.Debug("event mirrored",
		zap.String("topic", k.topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.producer.Close()
}
