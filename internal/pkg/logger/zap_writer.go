package logger

import (
	"fmt"
	"github.com/zeromicro/go-zero/core/logx"
	"strings"
)

// ZapWriter 将 go-zero logx 的输出桥接到 zap
type ZapWriter struct{}

var _ logx.Writer = ZapWriter{}

func (ZapWriter) Alert(v any) {
	sugar.Load().Error(v)
}

func (ZapWriter) Close() error {
	return sugar.Load().Sync()
}

func (ZapWriter) Debug(v any, fields ...logx.LogField) {
	sugar.Load().Debug(withFields(v, fields))
}

func (ZapWriter) Error(v any, fields ...logx.LogField) {
	sugar.Load().Error(withFields(v, fields))
}

func (ZapWriter) Info(v any, fields ...logx.LogField) {
	sugar.Load().Info(withFields(v, fields))
}

func (ZapWriter) Severe(v any) {
	sugar.Load().Error(v)
}

func (ZapWriter) Slow(v any, fields ...logx.LogField) {
	sugar.Load().Warn(withFields(v, fields))
}

func (ZapWriter) Stack(v any) {
	sugar.Load().Error(v)
}

func (ZapWriter) Stat(v any, fields ...logx.LogField) {
	sugar.Load().Debug(withFields(v, fields))
}

func withFields(v any, fields []logx.LogField) string {
	if len(fields) == 0 {
		return fmt.Sprint(v)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprint(v))
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(f.Value))
	}
	return b.String()
}
