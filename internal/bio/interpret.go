package bio

import (
	"encoding/json"
	"strings"
)

const (
	// fallbackScore 是解析失败降级路径使用的固定评分。
	fallbackScore = 70
	// maxFallbackRunes 限制降级简介的最大长度（按字符计）。
	maxFallbackRunes = 500
	// minUsableRunes 以下的自由文本视为生成失败。
	minUsableRunes = 10
)

// Outcome 标记一次解析走的路径，供指标上报使用。
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// Interpret 将 LLM 的原始输出转换为统一的 GenerationResult。
// 优先严格解析 JSON；解析失败且文本足够长时降级为截断文案，
// 否则判定本次生成失败。付费字段按请求层级过滤。
func Interpret(raw string, req GenerationRequest) (GenerationResult, Outcome) {
	cleaned := stripCodeFences(raw)

	var parsed GenerationResult
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil && strings.HasPrefix(cleaned, "{") {
		parsed.Success = true
		parsed.Error = ""
		if !req.Entitlement.Premium() {
			// 模型可能在未被要求时臆造付费字段，这里兜底剥除。
			parsed.Branding = nil
			parsed.PostIdeas = nil
			parsed.Hashtags = nil
			parsed.Resume = ""
		}
		return parsed, OutcomeParsed
	}

	if len([]rune(cleaned)) > minUsableRunes {
		score := fallbackScore
		return GenerationResult{
			Success: true,
			Bio:     truncateRunes(cleaned, maxFallbackRunes),
			Score:   &score,
			ScoreDetails: &ScoreDetails{
				Readability:       fallbackScore,
				Engagement:        fallbackScore,
				Uniqueness:        fallbackScore,
				PlatformRelevance: fallbackScore,
			},
		}, OutcomeFallback
	}

	return GenerationResult{Success: false, Error: "generation failed"}, OutcomeFailed
}

// stripCodeFences 去掉包裹文本的 Markdown 代码栏与首尾空白。
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// 语言标签（如 ```json）占据围栏后的第一行。
		if idx := strings.IndexByte(s, '\n'); idx >= 0 && !strings.ContainsAny(s[:idx], "{}") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
