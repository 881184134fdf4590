package content

import (
	"context"
	"encoding/json"
	"strings"
)

// StubModelClient returns mock LLM responses (for development/testing).
type StubModelClient struct{}

func (m *StubModelClient) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "study-notes writer") {
		return `# 学习笔记

[Stub] 这期视频围绕内容自动化流水线展开，介绍了从素材发现到发布的完整链路。

## 核心观点
自动化的价值在于把重复劳动交给机器，把判断留给人。

## 工程实践
每个环节都应该可重试、可观测，失败要留下可追溯的记录。

Key terms:
- 流水线: 按固定顺序串联的处理阶段
- 幂等: 重复执行不产生额外副作用`, nil
	}

	c := Content{
		Title:      "AI如何改变内容创作",
		Body:       "[Stub] 这期视频拆解了内容自动化流水线的核心思路🔥 从素材发现、字幕生成到自动发布，每一步都有可复用的工程经验。最打动我的是：简单可靠的流程比花哨的工具更重要✨ 你会最先自动化哪一步？评论区聊聊👇",
		Tags:       []string{"AI", "内容创作", "自动化"},
		Confidence: 0.92,
	}
	b, _ := json.Marshal(c)
	return string(b), nil
}
