package mq

import (
	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"loanbook/internal/config"
)

// Producer Kafka 同步生产者封装
type Producer struct {
	producer sarama.SyncProducer
}

// Init 初始化 Kafka 生产者
func Init(cfg *config.KafkaConfig) *Producer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		logrus.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	logrus.Info("Kafka 生产者创建成功")
	return &Producer{producer: producer}
}

// Send 发送消息
func (p *Producer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭生产者
func (p *Producer) Close() {
	if p.producer != nil {
		p.producer.Close()
	}
}
