package mq

import (
	"log"

	"quizwallet/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 消息投递接口，OutboxSender 只依赖这个接口
type Publisher interface {
	Publish(topic, key, value string) error
}

// Producer 基于 sarama 同步生产者的 Publisher 实现
type Producer struct {
	producer sarama.SyncProducer
}

func NewProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// InitKafka 初始化 Kafka 生产者，未启用时返回 nil
func InitKafka(cfg *config.KafkaConfig) *Producer {
	if !cfg.Enabled {
		log.Println("Kafka 未启用，outbox 消息将保持 PENDING")
		return nil
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	kafkaConfig.Producer.Idempotent = true                // 幂等生产，避免重试产生重复消息
	kafkaConfig.Net.MaxOpenRequests = 1
	kafkaConfig.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	log.Println("Kafka 生产者创建成功")
	return NewProducer(producer)
}

// Publish 发送消息到 Kafka
func (p *Producer) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
