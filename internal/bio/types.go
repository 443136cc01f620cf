package bio

import (
	"fmt"
	"strings"
)

// Platform 表示目标社交平台。
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformOnlyFans  Platform = "onlyfans"
)

// Style 表示简介文案风格。
type Style string

const (
	StyleFun          Style = "fun"
	StyleProfessional Style = "professional"
	StyleGaming       Style = "gaming"
	StyleSexy         Style = "sexy"
	StyleMysterious   Style = "mysterious"
	StyleCreative     Style = "creative"
)

// Entitlement 表示调用方的付费层级。
// 作为显式值随请求传递，确保免费用户的结果不可能携带付费字段。
type Entitlement string

const (
	EntitlementFree    Entitlement = "free"
	EntitlementPremium Entitlement = "premium"
)

// Premium 报告该层级是否解锁付费功能。
func (e Entitlement) Premium() bool { return e == EntitlementPremium }

// Features 描述本次生成请求附带的可选功能开关。
// 开关只在付费层级下生效，每个开关独立控制一组输出字段。
type Features struct {
	Branding      bool `json:"branding"`
	PostIdeas     bool `json:"postIdeas"`
	Resume        bool `json:"resume"`
	RealtimeScore bool `json:"realtimeScore"`
	LinkInBio     bool `json:"linkInBio"`
}

// GenerationRequest 是一次简介生成的全部输入。
// Entitlement 由会话层注入，不接受客户端负载中的值。
type GenerationRequest struct {
	Name        string      `json:"name"`
	Platform    Platform    `json:"platform"`
	Style       Style       `json:"style"`
	Interests   string      `json:"interests"`
	Entitlement Entitlement `json:"-"`
	Features    Features    `json:"features"`
}

// ScoreDetails 拆分总评分的四个维度，取值 0-100。
type ScoreDetails struct {
	Readability       int `json:"readability"`
	Engagement        int `json:"engagement"`
	Uniqueness        int `json:"uniqueness"`
	PlatformRelevance int `json:"platformRelevance"`
}

// Branding 是付费层级的品牌化建议输出。
type Branding struct {
	Username string   `json:"username"`
	Slogan   string   `json:"slogan"`
	Colors   []string `json:"colors"`
}

// GenerationResult 是生成管线的统一出参。
// 付费字段仅在请求层级为 premium 时允许出现。
type GenerationResult struct {
	Success      bool          `json:"success"`
	Bio          string        `json:"bio,omitempty"`
	Score        *int          `json:"score,omitempty"`
	ScoreDetails *ScoreDetails `json:"scoreDetails,omitempty"`
	Branding     *Branding     `json:"branding,omitempty"`
	PostIdeas    []string      `json:"postIdeas,omitempty"`
	Hashtags     []string      `json:"hashtags,omitempty"`
	Resume       string        `json:"resume,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// FieldError 描述单个字段的校验失败原因。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 聚合一次请求的全部字段错误。
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid generation request: " + strings.Join(parts, "; ")
}

var validPlatforms = map[Platform]struct{}{
	PlatformTikTok:    {},
	PlatformInstagram: {},
	PlatformTwitter:   {},
	PlatformLinkedIn:  {},
	PlatformOnlyFans:  {},
}

var validStyles = map[Style]struct{}{
	StyleFun:          {},
	StyleProfessional: {},
	StyleGaming:       {},
	StyleSexy:         {},
	StyleMysterious:   {},
	StyleCreative:     {},
}

// Validate 检查枚举字段与必填字段，所有问题一次性返回。
func (r GenerationRequest) Validate() error {
	var fields []FieldError

	if strings.TrimSpace(r.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "must not be empty"})
	}
	if _, ok := validPlatforms[r.Platform]; !ok {
		fields = append(fields, FieldError{Field: "platform", Message: fmt.Sprintf("unknown platform %q", r.Platform)})
	}
	if _, ok := validStyles[r.Style]; !ok {
		fields = append(fields, FieldError{Field: "style", Message: fmt.Sprintf("unknown style %q", r.Style)})
	}
	if strings.TrimSpace(r.Interests) == "" {
		fields = append(fields, FieldError{Field: "interests", Message: "must not be empty"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
