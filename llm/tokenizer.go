package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/expoflow/types"
)

// TokenCounter 基于 tiktoken 的 Token 计数器，
// 用于会话上下文窗口的 Token 预算裁剪。
type TokenCounter struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// 模型到 tiktoken 编码的映射
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// NewTokenCounter 为给定模型创建 Token 计数器
func NewTokenCounter(model string) *TokenCounter {
	encoding, ok := modelEncodings[model]
	if !ok {
		// 最长前缀匹配，保证 gpt-4o-* 不落到 gpt-4 的编码上
		best := 0
		for prefix, enc := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix && len(prefix) > best {
				encoding = enc
				best = len(prefix)
			}
		}
		ok = best > 0
	}
	if !ok {
		encoding = "cl100k_base"
	}

	return &TokenCounter{model: model, encoding: encoding}
}

// init 延迟初始化 tiktoken 编码（首次使用时可能下载数据）
func (t *TokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 统计文本的 Token 数
func (t *TokenCounter) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// CountTurns 统计会话回合列表的总 Token 数，
// 每回合附加角色与分隔符开销。
func (t *TokenCounter) CountTurns(turns []types.Turn) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}

	total := 0
	for _, turn := range turns {
		// 每条消息的开销: <|start|>role\n content<|end|>\n
		total += 4
		total += len(t.enc.Encode(turn.Text, nil, nil))
		total += len(t.enc.Encode(string(turn.Role), nil, nil))
	}
	total += 3 // conversation-end overhead
	return total, nil
}

// Name 返回计数器标识
func (t *TokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
