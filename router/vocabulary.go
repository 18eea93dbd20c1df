package router

import (
	"regexp"

	"github.com/BaSui01/expoflow/types"
)

// AgentVocabulary 单个 agent 的触发词表。
// 主关键词计 2 分，次关键词计 1 分，问句模式计 3 分。
type AgentVocabulary struct {
	Primary   []string
	Secondary []string
	Patterns  []*regexp.Regexp
}

// Vocabulary agent → 词表的配置表，新增 agent 无需改动路由逻辑
type Vocabulary map[types.AgentTag]AgentVocabulary

// DefaultVocabulary 返回内置西语词表
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		types.AgentExhibitors: {
			Primary: []string{
				"expositores", "empresas", "stands", "marcas", "compañías",
				"participantes comerciales", "directorio empresas", "catálogo expositores",
				"lista empresas", "nombres empresas", "cuántas empresas",
				"stands asignados", "números stand", "ubicación stands",
				"productos exhibidos", "servicios expositores", "contacto empresas",
			},
			Secondary: []string{
				"comercial", "venta", "producto", "servicio", "negocio",
				"proveedor", "distribuidor", "marca comercial", "empresa participante",
			},
			Patterns: compilePatterns(
				`qué empresas`,
				`cuáles empresas`,
				`lista.*empresas`,
				`directorio.*expositores`,
				`stands.*ubicados`,
				`empresas.*participan`,
			),
		},

		types.AgentVisitors: {
			Primary: []string{
				"visitantes", "asistentes", "público", "asistencia", "audiencia",
				"cuántos visitantes", "número asistentes", "cantidad público",
				"estadísticas visitantes", "demografía", "perfil visitantes",
				"datos asistencia", "cifras público", "análisis audiencia",
				"tendencias asistencia", "crecimiento visitantes",
			},
			Secondary: []string{
				"profesionales", "sector", "industria", "perfil demográfico",
				"networking", "conexiones", "participación", "registro",
			},
			Patterns: compilePatterns(
				`cuántos.*visitantes`,
				`cuánta.*gente`,
				`número.*asistentes`,
				`estadísticas.*público`,
				`demografía.*visitantes`,
				`perfil.*asistentes`,
			),
		},

		types.AgentGeneral: {
			Primary: []string{
				"información general", "qué es", "cómo funciona", "cuándo",
				"dónde", "inscripción", "participar",
				"evento", "feria", "historia evento", "objetivos",
				"beneficios", "actividades",
			},
			Secondary: []string{
				"ayuda", "información", "detalles", "explicación",
				"orientación", "guía", "soporte", "consulta general",
			},
			Patterns: compilePatterns(
				`cómo.*participar`,
				`cuándo.*evento`,
				`dónde.*realiza`,
				`qué.*haces`,
				`ayuda.*con`,
				`información.*sobre`,
			),
		},
	}
}

// WithOverrides 用配置词表覆盖内置主关键词；
// 出现未知 agent_tag 时追加一个仅含主关键词的新词表。
func (v Vocabulary) WithOverrides(overrides map[string][]string) Vocabulary {
	if len(overrides) == 0 {
		return v
	}
	out := make(Vocabulary, len(v))
	for tag, vocab := range v {
		out[tag] = vocab
	}
	for tag, terms := range overrides {
		vocab := out[types.AgentTag(tag)]
		vocab.Primary = terms
		out[types.AgentTag(tag)] = vocab
	}
	return out
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}
