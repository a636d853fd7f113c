package requestqueue

import (
	"context"
	"net/http"
)

// QueuedTransport 让普通 http.Client 的每次请求都经过队列
type QueuedTransport struct {
	Queue *RequestQueue
	Base  http.RoundTripper
}

// RoundTrip 排队后再交给 Base 发送
//
// 响应体在任务返回之后才被读取，所以这里使用请求自身的 ctx，
// 不使用队列包装过超时的任务 ctx（任务结束时会被 cancel）。
func (t *QueuedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	f := t.Queue.Submit(ctx, func(context.Context) (any, error) {
		return t.base().RoundTrip(req)
	})

	v, err := f.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			go closeLateResponse(f)
		}
		return nil, err
	}
	resp, _ := v.(*http.Response)
	return resp, nil
}

func (t *QueuedTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// 调用方已放弃，但任务可能已经发出，等它结束后关闭响应体
func closeLateResponse(f *Future) {
	v, err := f.Wait(context.Background())
	if err != nil {
		return
	}
	if resp, ok := v.(*http.Response); ok && resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
