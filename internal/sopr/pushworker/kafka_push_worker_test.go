package pushworker

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"google.golang.org/protobuf/types/known/structpb"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func newResult(token, session string, at time.Time, sopr *float64) *types.SoprResult {
	return &types.SoprResult{
		Token:          token,
		Session:        session,
		CurrentSopr:    sopr,
		AverageSopr:    sopr,
		Classification: types.ClassInProfit,
		Trend:          types.Trend{Direction: types.TrendUp, Strength: 0.1, Samples: []float64{1.0, 1.1}},
		HolderCount:    3,
		ValidPairCount: 2,
		Holders: []types.HolderOutcome{
			{Skip: types.SkipNoSell},
		},
		ComputedAt: at,
	}
}

func mustTask(t *testing.T, res *types.SoprResult) *PushTask {
	t.Helper()
	task, err := NewPushTask(res)
	if err != nil {
		t.Fatalf("NewPushTask: %v", err)
	}
	return task
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1_700_000_000_000)
	payload, err := BuildPayload(newResult("tok", "s1", at, ptr(1.25)))
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	fields := payload.GetFields()
	if got := fields["currentSopr"].GetNumberValue(); got != 1.25 {
		t.Fatalf("currentSopr = %v, want 1.25", got)
	}
	if got := fields["trendDirection"].GetStringValue(); got != "up" {
		t.Fatalf("trendDirection = %q", got)
	}
	if got := fields["computedAtMs"].GetNumberValue(); got != 1_700_000_000_000 {
		t.Fatalf("computedAtMs = %v", got)
	}
	if got := fields["skipped"].GetStructValue().GetFields()["no_sell"].GetNumberValue(); got != 1 {
		t.Fatalf("skipped.no_sell = %v, want 1", got)
	}

	undefined, err := BuildPayload(newResult("tok", "s1", at, nil))
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	if _, ok := undefined.GetFields()["currentSopr"].GetKind().(*structpb.Value_NullValue); !ok {
		t.Fatalf("undefined sopr should be encoded as null")
	}
}

func TestUpsertTasksKeepsLatest(t *testing.T) {
	t.Parallel()

	w := newWorker("sopr", 4, nil)
	defer w.cancel()

	base := time.Now()
	older := mustTask(t, newResult("tok", "s1", base, ptr(1.0)))
	newer := mustTask(t, newResult("tok", "s1", base.Add(time.Second), ptr(2.0)))
	other := mustTask(t, newResult("tok", "s2", base, ptr(3.0)))

	w.upsertTasks([]*PushTask{newer, other})
	w.upsertTasks([]*PushTask{older})

	if len(w.tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(w.tasks))
	}
	if got := w.tasks["tok|s1"].Payload.GetFields()["currentSopr"].GetNumberValue(); got != 2.0 {
		t.Fatalf("kept sopr = %v, want 2.0", got)
	}
}

func TestToKafkaMessage(t *testing.T) {
	t.Parallel()

	w := newWorker("sopr", 4, nil)
	defer w.cancel()

	task := mustTask(t, newResult("tok", "s1", time.Now(), ptr(0.9)))
	msg := w.toKafkaMessage(task)
	if msg == nil {
		t.Fatalf("toKafkaMessage returned nil")
	}
	if *msg.TopicPartition.Topic != "sopr" {
		t.Fatalf("topic = %s", *msg.TopicPartition.Topic)
	}
	if want := utils.PartitionOf(utils.TokenHash("tok"), 4); msg.TopicPartition.Partition != want {
		t.Fatalf("partition = %d, want %d", msg.TopicPartition.Partition, want)
	}
	if id, ok := msg.Opaque.(MsgID); !ok || id.Key != "tok|s1" {
		t.Fatalf("opaque = %#v", msg.Opaque)
	}

	var decoded structpb.Struct
	if err := utils.SafeProtoUnmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got := decoded.GetFields()["token"].GetStringValue(); got != "tok" {
		t.Fatalf("token = %q", got)
	}

	single := newWorker("sopr", 1, nil)
	defer single.cancel()
	if p := single.toKafkaMessage(task).TopicPartition.Partition; p != kafka.PartitionAny {
		t.Fatalf("single partition topic should use PartitionAny, got %d", p)
	}
}

func TestPickTasksOldestFirst(t *testing.T) {
	t.Parallel()

	w := newWorker("sopr", 4, nil)
	defer w.cancel()

	base := time.Now()
	batch := make([]*PushTask, 0, sendBatchSize+10)
	for i := 0; i < sendBatchSize+10; i++ {
		res := newResult("tok", string(rune('a'+i%26))+time.Duration(i).String(), base.Add(time.Duration(i)*time.Millisecond), ptr(1))
		batch = append(batch, mustTask(t, res))
	}
	w.upsertTasks(batch)

	picked := w.pickTasks()
	if len(picked) != sendBatchSize {
		t.Fatalf("picked = %d, want %d", len(picked), sendBatchSize)
	}
	for _, p := range picked {
		if p.ComputedAtMs > base.Add(time.Duration(sendBatchSize-1)*time.Millisecond).UnixMilli() {
			t.Fatalf("picked a task newer than the oldest batch")
		}
	}
}

func TestBufPool(t *testing.T) {
	t.Parallel()

	p := NewBufPool(2, 2, 64)
	if p.Idle() != 2 {
		t.Fatalf("idle = %d, want 2", p.Idle())
	}
	a, b, c := p.Get(), p.Get(), p.Get()
	if len(a) != 0 || cap(c) != 64 {
		t.Fatalf("unexpected buffers")
	}
	p.Put(a)
	p.Put(b)
	p.Put(c)
	if p.Idle() != 2 {
		t.Fatalf("idle = %d, want capped at 2", p.Idle())
	}
	p.Get()
	p.Put(make([]byte, 0, 64*32))
	if p.Idle() != 1 {
		t.Fatalf("oversized buffer should not be retained")
	}
}

func TestPushTaskDoesNotShareResult(t *testing.T) {
	t.Parallel()

	res := newResult("tok", "s1", time.Now(), ptr(1.1))
	res.Holders = append(res.Holders, types.HolderOutcome{Skip: types.SkipNoBuy})
	task := mustTask(t, res)

	// 调用方在任务入队后继续修改结果（例如接口返回前裁剪明细）
	done := make(chan struct{})
	go func() {
		defer close(done)
		res.Holders = nil
		res.CurrentSopr = ptr(9)
	}()

	w := newWorker("sopr", 4, nil)
	defer w.cancel()
	msg := w.toKafkaMessage(task)
	<-done

	var decoded structpb.Struct
	if err := utils.SafeProtoUnmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	fields := decoded.GetFields()
	skipped := fields["skipped"].GetStructValue().GetFields()
	if len(skipped) != 2 || skipped["no_sell"].GetNumberValue() != 1 || skipped["no_buy"].GetNumberValue() != 1 {
		t.Fatalf("skipped = %v, want no_sell=1 no_buy=1", skipped)
	}
	if got := fields["currentSopr"].GetNumberValue(); got != 1.1 {
		t.Fatalf("currentSopr = %v, want 1.1", got)
	}
}
