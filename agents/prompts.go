package agents

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/llm"
	"github.com/BaSui01/expoflow/types"
)

// 各域的系统提示词
const (
	generalSystemPrompt = "Eres un asistente experto en el evento. SIEMPRE proporcionas " +
		"respuestas útiles, informativas y relevantes. Nunca digas que no tienes " +
		"información disponible. Responde de manera natural y conversacional, " +
		"entre 2 y 4 párrafos."

	exhibitorsSystemPrompt = "Eres un especialista en los expositores del evento: empresas, " +
		"stands, marcas y su oferta comercial. Responde con datos concretos del " +
		"directorio de expositores y mejora la presentación sin inventar información nueva."

	visitorsSystemPrompt = "Eres un especialista del evento enfocado en visitantes y " +
		"estadísticas de asistencia. SIEMPRE proporcionas información útil sobre " +
		"el público del evento: cifras, perfiles y tendencias."
)

// NewDefaultRegistry 构建带三个内置 Agent 的注册表。
// retrievers 缺失的 tag 以 nil 检索器注册（纯 LLM 回答）。
func NewDefaultRegistry(provider llm.Provider, retrievers map[types.AgentTag]Retriever, timeout time.Duration, logger *zap.Logger) *Registry {
	prompts := map[types.AgentTag]string{
		types.AgentGeneral:    generalSystemPrompt,
		types.AgentExhibitors: exhibitorsSystemPrompt,
		types.AgentVisitors:   visitorsSystemPrompt,
	}

	registry := NewRegistry()
	for tag, prompt := range prompts {
		registry.Register(NewLLMAgent(LLMAgentConfig{
			Tag:          tag,
			SystemPrompt: prompt,
			Timeout:      timeout,
		}, provider, retrievers[tag], logger))
	}
	return registry
}
