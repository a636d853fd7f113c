package mq

import (
	"context"
	"fmt"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"os"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/utils"
	"strings"
	"time"
)

// KafkaTopicConf 单个 topic 及其分区数
type KafkaTopicConf struct {
	Topic      string `json:"topic" yaml:"topic"`
	Partitions int    `json:"partitions" yaml:"partitions"`
}

// KafkaProducerConf Kafka 生产者配置，时间参数单位为毫秒
type KafkaProducerConf struct {
	Brokers          []string         `json:"brokers" yaml:"brokers"`                       // broker 地址列表
	Topics           []KafkaTopicConf `json:"topics" yaml:"topics"`                         // 目标 topic
	Acks             string           `json:"acks" yaml:"acks"`                             // all / 1 / 0
	LingerMs         int              `json:"linger_ms" yaml:"linger_ms"`                   // 批量等待时间
	MessageTimeoutMs int              `json:"message_timeout_ms" yaml:"message_timeout_ms"` // 单条消息投递超时
	Compression      string           `json:"compression" yaml:"compression"`               // none / lz4 / zstd ...
	RetryBackoffMs   int              `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`     // 重试间隔
}

func (c *KafkaProducerConf) applyDefaults() {
	if c.Acks == "" {
		c.Acks = "all"
	}
	if c.LingerMs <= 0 {
		c.LingerMs = 20
	}
	if c.MessageTimeoutMs <= 0 {
		c.MessageTimeoutMs = 30000
	}
	if c.Compression == "" {
		c.Compression = "lz4"
	}
	if c.RetryBackoffMs <= 0 {
		c.RetryBackoffMs = 200
	}
}

// SendResult 单条消息的投递结果
// Completed=true 表示 librdkafka 已不再持有 Msg.Value，buffer 可以复用
type SendResult struct {
	Msg       *kafka.Message
	Success   bool
	Completed bool
	Err       error
}

// NewKafkaProducer 创建生产者，并在后台消费非投递类事件（错误日志）
func NewKafkaProducer(conf *KafkaProducerConf) (*kafka.Producer, error) {
	if conf == nil || len(conf.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: brokers not configured")
	}
	conf.applyDefaults()

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(conf.Brokers, ","),
		"client.id":          producerClientID(),
		"acks":               conf.Acks,
		"linger.ms":          conf.LingerMs,
		"message.timeout.ms": conf.MessageTimeoutMs,
		"compression.type":   conf.Compression,
		"retry.backoff.ms":   conf.RetryBackoffMs,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for e := range producer.Events() {
			switch ev := e.(type) {
			case kafka.Error:
				logger.Errorf("[KafkaProducer] error: %v (code=%v, fatal=%v)", ev, ev.Code(), ev.IsFatal())
			case *kafka.Message:
				// 未指定 deliveryChan 的消息
				if ev.TopicPartition.Error != nil {
					logger.Warnf("[KafkaProducer] delivery failed: %v", ev.TopicPartition.Error)
				}
			}
		}
	}()

	logger.Infof("[KafkaProducer] New: brokers=%v, topics=%v", conf.Brokers, conf.Topics)
	return producer, nil
}

// SendKafkaMessagesBatch 批量发送并等待投递回执
// 超时或 ctx 结束时，尚未回执的消息不会出现在结果中
func SendKafkaMessagesBatch(ctx context.Context, producer *kafka.Producer, msgs []*kafka.Message, timeout time.Duration) []SendResult {
	if len(msgs) == 0 {
		return nil
	}

	results := make([]SendResult, 0, len(msgs))
	deliveryChan := make(chan kafka.Event, len(msgs))

	pending := 0
	for _, msg := range msgs {
		if err := producer.Produce(msg, deliveryChan); err != nil {
			results = append(results, SendResult{Msg: msg, Success: false, Completed: true, Err: err})
			continue
		}
		pending++
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for pending > 0 {
		select {
		case <-ctx.Done():
			return results
		case <-timer.C:
			logger.Warnf("[KafkaProducer] batch delivery timed out, %d messages without report", pending)
			return results
		case e := <-deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			pending--
			results = append(results, SendResult{
				Msg:       m,
				Success:   m.TopicPartition.Error == nil,
				Completed: true,
				Err:       m.TopicPartition.Error,
			})
		}
	}
	return results
}

func producerClientID() string {
	hostname, _ := os.Hostname()
	localIP, _ := utils.GetLocalIP()
	if localIP == "" {
		localIP = "unknown"
	}
	return fmt.Sprintf("sopr-stats-%s-%s", hostname, localIP)
}
