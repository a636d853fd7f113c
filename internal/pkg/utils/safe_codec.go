package utils

import (
	"encoding/json"
	"fmt"
	"google.golang.org/protobuf/proto"
	"runtime/debug"
)

// recoverAsError 在 defer 中调用，把 panic 转成 err
func recoverAsError(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic recovered in %s: %v\nstacktrace:\n%s", op, r, debug.Stack())
	}
}

// SafeProtoMarshal 序列化 Protobuf 并追加到 buf，防止 panic
func SafeProtoMarshal[T proto.Message](buf []byte, msg T) (data []byte, err error) {
	defer recoverAsError("SafeProtoMarshal", &err)

	opts := proto.MarshalOptions{Deterministic: true}
	data, err = opts.MarshalAppend(buf, msg)
	return
}

// SafeProtoUnmarshal 反序列化 Protobuf，防止 panic
func SafeProtoUnmarshal[T proto.Message](data []byte, msg T) (err error) {
	defer recoverAsError("SafeProtoUnmarshal", &err)
	return proto.Unmarshal(data, msg)
}

// SafeJsonUnmarshal 反序列化第三方 JSON 响应，防止 panic
func SafeJsonUnmarshal[T any](data []byte, v *T) (err error) {
	defer recoverAsError("SafeJsonUnmarshal", &err)
	return json.Unmarshal(data, v)
}

// SafeJsonMarshal 序列化 JSON，防止 panic
func SafeJsonMarshal[T any](v T) (data []byte, err error) {
	defer recoverAsError("SafeJsonMarshal", &err)
	return json.Marshal(v)
}
