package pushworker

import (
	"context"
	"fmt"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"google.golang.org/protobuf/types/known/structpb"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/mq"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
	"sort"
	"sync/atomic"
	"time"
)

const (
	singleBufSize     = 1024             // 单条消息 buffer 大小
	bufPoolPreAlloc   = 32               // BufPool 启动时预分配的 buffer 数量
	sendBatchSize     = 256              // 每次发送 Kafka 消息的条数上限
	inputChanSize     = 128              // inputChan 缓冲大小
	initTaskCap       = 256              // tasks map 初始容量
	taskLimit         = 4096             // tasks map 最大保留条数
	taskMapResetLimit = taskLimit * 2    // 超过该长度就重新分配 map
	kafkaBatchTimeout = 10 * time.Second // Kafka 批量发送超时时间
)

// PushTask 一次 SOPR 计算结果的推送任务，同一 token+session 只保留最新一条
// Payload 在构造时生成，之后与原结果不再共享任何可变状态
type PushTask struct {
	Token        string
	Session      string
	TokenHash    uint64
	ComputedAtMs int64
	Payload      *structpb.Struct
}

func (t *PushTask) key() string {
	return t.Token + "|" + t.Session
}

// NewPushTask 从计算结果构造推送任务，需在结果交给其他协程之前调用
func NewPushTask(res *types.SoprResult) (*PushTask, error) {
	payload, err := BuildPayload(res)
	if err != nil {
		return nil, fmt.Errorf("build payload for %s: %w", res.Token, err)
	}
	return &PushTask{
		Token:        res.Token,
		Session:      res.Session,
		TokenHash:    utils.TokenHash(res.Token),
		ComputedAtMs: res.ComputedAt.UnixMilli(),
		Payload:      payload,
	}, nil
}

type MsgID struct {
	Key          string
	Token        string
	ComputedAtMs int64
}

type SoprPushListener interface {
	OnSoprPushed([]MsgID)
}

// KafkaPushWorker 将 SOPR 结果批量推送到 Kafka
type KafkaPushWorker struct {
	producer        *kafka.Producer
	inputChan       chan []*PushTask
	ctx             context.Context
	cancel          context.CancelFunc
	listener        SoprPushListener
	tasks           map[string]*PushTask
	bufPool         *BufPool // 只在 loop 协程中使用
	isPaused        atomic.Bool
	topic           string
	partitions      int
	lastSendLogTime atomic.Int64
}

func NewKafkaPushWorker(config *mq.KafkaProducerConf, listener SoprPushListener) (*KafkaPushWorker, error) {
	if len(config.Topics) != 1 {
		return nil, fmt.Errorf("kafka config must have exactly 1 topic, got %d", len(config.Topics))
	}

	producer, err := mq.NewKafkaProducer(config)
	if err != nil {
		logger.Errorf("[KafkaPushWorker] failed to create producer for topic %v: %v", config.Topics, err)
		return nil, err
	}

	w := newWorker(config.Topics[0].Topic, config.Topics[0].Partitions, listener)
	w.producer = producer
	return w, nil
}

func newWorker(topic string, partitions int, listener SoprPushListener) *KafkaPushWorker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &KafkaPushWorker{
		inputChan:  make(chan []*PushTask, inputChanSize),
		ctx:        ctx,
		cancel:     cancel,
		listener:   listener,
		tasks:      make(map[string]*PushTask, initTaskCap),
		topic:      topic,
		partitions: partitions,
		bufPool:    NewBufPool(bufPoolPreAlloc, sendBatchSize, singleBufSize),
	}
	w.isPaused.Store(true)
	return w
}

// Start 启动处理循环
func (w *KafkaPushWorker) Start() {
	w.Resume()
	w.loop()
}

// Stop 停止 worker 并关闭 producer
func (w *KafkaPushWorker) Stop() {
	w.isPaused.Store(true)
	w.cancel()
	if w.producer != nil {
		if remaining := w.producer.Flush(int(kafkaBatchTimeout / time.Millisecond)); remaining > 0 {
			logger.Warnf("[KafkaPushWorker] %d messages not flushed on stop", remaining)
		}
		w.producer.Close()
	}
}

func (w *KafkaPushWorker) Resume() {
	w.isPaused.Store(false)
}

func (w *KafkaPushWorker) Pause() {
	w.isPaused.Store(true)
}

// Add 阻塞添加任务，队列满时等待，不丢弃，限频打印
func (w *KafkaPushWorker) Add(list []*PushTask) {
	for {
		if w.isPaused.Load() {
			return
		}

		select {
		case <-w.ctx.Done():
			return

		case w.inputChan <- list:
			return

		default:
			if utils.ThrottleLog(&w.lastSendLogTime, 3*time.Second) {
				logger.Warnf("[KafkaPushWorker] inputChan full (%d), waiting to add task batch", len(w.inputChan))
			}
			time.Sleep(30 * time.Millisecond)
		}
	}
}

func (w *KafkaPushWorker) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case list := <-w.inputChan:
			batch := make([]*PushTask, 0, min(len(w.inputChan)+len(list), sendBatchSize))
			batch = appendTasks(batch, list)
			batch = w.collectBatch(batch)

			for len(batch) > 0 || len(w.tasks) > 0 {
				if w.isPaused.Load() {
					utils.ClearOrResetMap(&w.tasks, taskMapResetLimit, initTaskCap)
					break
				}

				w.handleBatch(batch)
				utils.ClearSlice(&batch)

				if len(w.tasks) <= taskLimit {
					batch = w.collectBatch(batch)
				}
				if len(batch) == 0 && len(w.tasks) > 0 {
					// 发送失败的任务等待下一轮，避免空转
					select {
					case <-w.ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
			}
		}
	}
}

// collectBatch 非阻塞地收集 inputChan 中的任务
func (w *KafkaPushWorker) collectBatch(batch []*PushTask) []*PushTask {
	for {
		select {
		case list := <-w.inputChan:
			batch = appendTasks(batch, list)
		default:
			return batch
		}
	}
}

func appendTasks(batch, list []*PushTask) []*PushTask {
	for _, task := range list {
		if task != nil && task.Payload != nil {
			batch = append(batch, task)
		}
	}
	return batch
}

// upsertTasks 同一 key 只保留计算时间最新的结果
func (w *KafkaPushWorker) upsertTasks(batch []*PushTask) {
	for _, task := range batch {
		k := task.key()
		if old := w.tasks[k]; old == nil || task.ComputedAtMs >= old.ComputedAtMs {
			w.tasks[k] = task
		}
	}
}

// pickTasks 超过 sendBatchSize 时优先发送最早的结果
func (w *KafkaPushWorker) pickTasks() []*PushTask {
	all := make([]*PushTask, 0, len(w.tasks))
	for _, t := range w.tasks {
		all = append(all, t)
	}
	if len(all) <= sendBatchSize {
		return all
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ComputedAtMs == all[j].ComputedAtMs {
			return all[i].TokenHash < all[j].TokenHash
		}
		return all[i].ComputedAtMs < all[j].ComputedAtMs
	})
	return all[:sendBatchSize]
}

func (w *KafkaPushWorker) handleBatch(batch []*PushTask) {
	w.upsertTasks(batch)

	picked := w.pickTasks()
	toSend := make([]*kafka.Message, 0, len(picked))
	for _, t := range picked {
		if msg := w.toKafkaMessage(t); msg != nil {
			toSend = append(toSend, msg)
		} else {
			delete(w.tasks, t.key())
		}
	}
	w.dispatchBatch(toSend)
}

// dispatchBatch 发送消息，成功后从任务 map 移除并回调 listener
func (w *KafkaPushWorker) dispatchBatch(messages []*kafka.Message) {
	if w.isPaused.Load() || len(messages) == 0 {
		return
	}

	results := mq.SendKafkaMessagesBatch(w.ctx, w.producer, messages, kafkaBatchTimeout)

	successList := make([]MsgID, 0, len(messages))
	for _, item := range results {
		if item.Completed {
			w.bufPool.Put(item.Msg.Value)
		}
		if !item.Success {
			if utils.ThrottleLog(&w.lastSendLogTime, 3*time.Second) {
				logger.Warnf("[KafkaPushWorker] delivery failed: %v", item.Err)
			}
			continue
		}

		msgID, ok := item.Msg.Opaque.(MsgID)
		if !ok {
			continue
		}
		if task, exists := w.tasks[msgID.Key]; exists && msgID.ComputedAtMs >= task.ComputedAtMs {
			delete(w.tasks, msgID.Key)
		}
		successList = append(successList, msgID)
	}

	if w.listener != nil && len(successList) > 0 && !w.isPaused.Load() {
		w.listener.OnSoprPushed(successList)
	}
}

func (w *KafkaPushWorker) toKafkaMessage(t *PushTask) *kafka.Message {
	data, err := utils.SafeProtoMarshal(w.bufPool.Get(), t.Payload)
	if err != nil {
		logger.Warnf("[KafkaPushWorker] marshal payload failed for token=%s: %v", t.Token, err)
		return nil
	}

	partition := kafka.PartitionAny
	if p := utils.PartitionOf(t.TokenHash, w.partitions); p >= 0 {
		partition = p
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &w.topic,
			Partition: partition,
		},
		Key:   []byte(t.Token),
		Value: data,
		Opaque: MsgID{
			Key:          t.key(),
			Token:        t.Token,
			ComputedAtMs: t.ComputedAtMs,
		},
	}
}

// BuildPayload 将结果转换为 protobuf Struct（不含逐个持有人的明细）
func BuildPayload(res *types.SoprResult) (*structpb.Struct, error) {
	samples := make([]any, len(res.Trend.Samples))
	for i, v := range res.Trend.Samples {
		samples[i] = v
	}
	skips := make(map[string]any)
	for reason, n := range res.SkipCounts() {
		skips[string(reason)] = n
	}

	return structpb.NewStruct(map[string]any{
		"token":           res.Token,
		"session":         res.Session,
		"currentSopr":     optional(res.CurrentSopr),
		"averageSopr":     optional(res.AverageSopr),
		"classification":  string(res.Classification),
		"trendDirection":  res.Trend.Direction.String(),
		"trendStrength":   res.Trend.Strength,
		"trendSamples":    samples,
		"holderCount":     res.HolderCount,
		"validPairCount":  res.ValidPairCount,
		"skipped":         skips,
		"currentPriceUsd": optional(res.CurrentPriceUsd),
		"pairAddress":     res.PairAddress,
		"computedAtMs":    res.ComputedAt.UnixMilli(),
	})
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
