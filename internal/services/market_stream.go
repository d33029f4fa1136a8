package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zorabot/gozora/pkg/logger"
)

// BlockEvent 链上新区块事件（newHeads 订阅的精简视图）
type BlockEvent struct {
	Number    uint64    // 区块高度
	Hash      string    // 区块哈希
	Timestamp time.Time // 收到事件的本地时间
}

// BlockStream 节点 websocket 区块订阅
// 订阅 newHeads，把新区块推给回调；连接断开后自动重连（指数退避，封顶 30s）
type BlockStream struct {
	wsURL   string
	onBlock func(BlockEvent)
}

// NewBlockStream 创建区块订阅
func NewBlockStream(wsURL string, onBlock func(BlockEvent)) *BlockStream {
	return &BlockStream{wsURL: wsURL, onBlock: onBlock}
}

// Run 运行订阅循环，阻塞直到 ctx 取消
func (s *BlockStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warnf("⚠️ 区块订阅断开: %v，%s 后重连", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// newHeadsNotification eth_subscription 推送的消息体
type newHeadsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Number string `json:"number"` // hex
			Hash   string `json:"hash"`
		} `json:"result"`
	} `json:"params"`
}

// connectAndRead 建立连接、发起订阅并持续读取，直到出错或 ctx 取消
func (s *BlockStream) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.wsURL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []any{"newHeads"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Infof("✅ 区块订阅已建立: %s", s.wsURL)

	// ctx 取消时强制关闭连接，打断阻塞中的 ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg newHeadsNotification
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Method != "eth_subscription" {
			continue
		}

		number, err := strconv.ParseUint(strings.TrimPrefix(msg.Params.Result.Number, "0x"), 16, 64)
		if err != nil {
			continue
		}
		if s.onBlock != nil {
			s.onBlock(BlockEvent{
				Number:    number,
				Hash:      msg.Params.Result.Hash,
				Timestamp: time.Now(),
			})
		}
	}
}
