package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/types"
)

func newTestRouter() *Router {
	return New(DefaultVocabulary(), DefaultConfig(), zap.NewNop())
}

func turnFromAgent(agent types.AgentTag, age time.Duration) types.Turn {
	turn := types.NewAgentTurn("respuesta previa", agent, 0.8, false)
	turn.Timestamp = time.Now().Add(-age)
	return turn
}

func TestRoute_KeywordMatch(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		query string
		want  types.AgentTag
	}{
		{"¿Cuántos expositores hay?", types.AgentExhibitors},
		{"lista de empresas participantes", types.AgentExhibitors},
		{"¿Cuántos visitantes asistieron el año pasado?", types.AgentVisitors},
		{"estadísticas de público y demografía", types.AgentVisitors},
		{"¿Cuándo es el evento y dónde se realiza?", types.AgentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			d := r.Route(tt.query, nil)
			assert.Equal(t, tt.want, d.SelectedAgent)
			assert.GreaterOrEqual(t, d.Confidence, 0.3)
			assert.False(t, d.UsedContext)
			assert.NotEmpty(t, d.MatchedKeywords)
		})
	}
}

func TestRoute_ScenarioExhibitors(t *testing.T) {
	r := newTestRouter()

	d := r.Route("¿Cuántos expositores hay?", nil)
	assert.Equal(t, types.AgentExhibitors, d.SelectedAgent)
	assert.GreaterOrEqual(t, d.Confidence, 0.3)
	assert.LessOrEqual(t, d.Confidence, 1.0)
}

func TestRoute_NoSignalFallsBackToGeneral(t *testing.T) {
	r := newTestRouter()

	d := r.Route("texto sin ninguna señal reconocible aquí presente hoy", nil)
	assert.Equal(t, types.AgentGeneral, d.SelectedAgent)
	assert.Less(t, d.Confidence, 0.3)
	assert.False(t, d.UsedContext)
}

func TestRoute_ContinuityBias(t *testing.T) {
	r := newTestRouter()
	ctx := []types.Turn{
		types.NewUserTurn("¿cuánto cuesta un stand?"),
		turnFromAgent(types.AgentExhibitors, 1*time.Minute),
	}

	// 无关键词信号的短追问沿用上一 agent
	d := r.Route("¿y las dimensiones?", ctx)
	assert.Equal(t, types.AgentExhibitors, d.SelectedAgent)
	assert.True(t, d.UsedContext)
	assert.GreaterOrEqual(t, d.Confidence, 0.6)
}

func TestRoute_StrongKeywordBeatsContinuity(t *testing.T) {
	r := newTestRouter()
	ctx := []types.Turn{
		turnFromAgent(types.AgentExhibitors, 1*time.Minute),
	}

	// 短查询但带异 agent 强信号 → 关键词证据获胜
	d := r.Route("¿cuántos visitantes hubo?", ctx)
	assert.Equal(t, types.AgentVisitors, d.SelectedAgent)
	assert.False(t, d.UsedContext)
}

func TestRoute_ContinuityExpiresOutsideWindow(t *testing.T) {
	r := newTestRouter()
	ctx := []types.Turn{
		turnFromAgent(types.AgentExhibitors, 10*time.Minute),
	}

	// 上一回合超出 5 分钟窗口 → 无偏置，回退 general
	d := r.Route("¿y las dimensiones?", ctx)
	assert.Equal(t, types.AgentGeneral, d.SelectedAgent)
	assert.False(t, d.UsedContext)
}

func TestRoute_TieBreakPrefersPreviousAgent(t *testing.T) {
	cfg := DefaultConfig()
	// 收紧追问词数，避免连续性路径先于同分裁决生效
	cfg.FollowupMaxWords = 1
	r := New(DefaultVocabulary(), cfg, zap.NewNop())

	ctx := []types.Turn{
		turnFromAgent(types.AgentVisitors, 1*time.Minute),
	}

	// 全员零分的长查询：同分裁决优先上一 agent，但置信度不足回退 general
	d := r.Route("palabras sueltas sin coincidencia alguna en vocabularios configurados", ctx)
	assert.Equal(t, types.AgentGeneral, d.SelectedAgent)
}

func TestRoute_LongFollowupWithConnective(t *testing.T) {
	r := newTestRouter()
	ctx := []types.Turn{
		turnFromAgent(types.AgentVisitors, 1*time.Minute),
	}

	// 超过词数上限但以连接词开头，仍视为追问
	d := r.Route("y eso que me contaste antes sobre los perfiles puede ampliarse un poco más", ctx)
	assert.Equal(t, types.AgentVisitors, d.SelectedAgent)
	assert.True(t, d.UsedContext)
}

func TestRoute_VocabularyOverrides(t *testing.T) {
	vocab := DefaultVocabulary().WithOverrides(map[string][]string{
		"catering": {"menú", "comida", "bebidas"},
	})
	r := New(vocab, DefaultConfig(), zap.NewNop())

	d := r.Route("¿dónde veo el menú de comida?", nil)
	assert.Equal(t, types.AgentTag("catering"), d.SelectedAgent)
	assert.GreaterOrEqual(t, d.Confidence, 0.3)
}

func TestRoute_EmptyQuery(t *testing.T) {
	r := newTestRouter()

	d := r.Route("", nil)
	assert.Equal(t, types.AgentGeneral, d.SelectedAgent)
	assert.Equal(t, 0.0, d.Confidence)
}

func TestIsFollowup(t *testing.T) {
	r := newTestRouter()

	assert.True(t, r.isFollowup("¿y las dimensiones?"))
	assert.True(t, r.isFollowup("eso mismo"))
	assert.True(t, r.isFollowup("y eso que me contaste antes sobre precios de los stands"))
	assert.False(t, r.isFollowup("quisiera saber todos los detalles disponibles sobre inscripciones para profesionales"))
	assert.False(t, r.isFollowup(""))
}
