package agents

import (
	"sync"

	"github.com/BaSui01/expoflow/types"
)

// Registry agent_tag → Agent 的并发安全注册表
type Registry struct {
	mu     sync.RWMutex
	agents map[types.AgentTag]Agent
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{agents: make(map[types.AgentTag]Agent)}
}

// Register 注册 Agent，同 tag 覆盖
func (r *Registry) Register(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.Tag()] = agent
}

// Get 按 tag 查找 Agent
func (r *Registry) Get(tag types.AgentTag) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[tag]
	if !ok {
		return nil, types.NewError(types.ErrInvalidAgentTag, "no agent registered for tag: "+tag.String()).
			WithComponent("agent_registry")
	}
	return agent, nil
}

// Tags 返回已注册的全部 tag
func (r *Registry) Tags() []types.AgentTag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]types.AgentTag, 0, len(r.agents))
	for tag := range r.agents {
		tags = append(tags, tag)
	}
	return tags
}
