package requestqueue

import (
	"context"
	"sync"
)

// Task 由调用方提供的一次外部调用
type Task func(ctx context.Context) (any, error)

// Future 单个请求的完成句柄，value/err 只会被写入一次
type Future struct {
	done chan struct{}
	once sync.Once
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(v any, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Done 请求完成（成功、失败或被拒绝）时关闭
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait 等待结果；ctx 结束时提前返回，请求本身在出队时会因 ctx 已结束而被跳过
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do 通过队列执行 fn 并等待其结果
func Do[T any](ctx context.Context, q *RequestQueue, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	f := q.Submit(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})

	v, err := f.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, errUnexpectedType(v, zero)
	}
	return out, nil
}
