// Package mq 定义消息队列的最小抽象。文件解析任务与对话任务
// 都经由这里投递，具体实现见 kafka 子包。
package mq

import "context"

type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type PublishResult struct {
	Partition int32
	Offset    int64
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) (PublishResult, error)
	Close() error
}

// Handler 处理一条消息。返回 nil 才提交位移；返回错误时消息会被重投，
// 因此处理逻辑必须幂等。
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}
