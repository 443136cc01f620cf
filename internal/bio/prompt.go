package bio

import (
	"fmt"
	"strings"
)

// BuildPrompt 根据请求拼装发给 LLM 的指令文本。
// 纯字符串构造，同一输入必定产生同一输出；付费段落按功能开关独立追加。
func BuildPrompt(req GenerationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a short %s bio for the social platform %s.\n", req.Style, req.Platform)
	fmt.Fprintf(&b, "The person is called %q and is interested in: %s.\n", req.Name, req.Interests)
	b.WriteString("Keep the bio within the platform's usual length conventions.\n\n")

	b.WriteString("Respond with a JSON object of the following shape:\n")
	b.WriteString("{\n")
	b.WriteString("  \"bio\": \"<the bio text>\",\n")
	b.WriteString("  \"score\": <overall quality 0-100>,\n")
	b.WriteString("  \"scoreDetails\": {\n")
	b.WriteString("    \"readability\": <0-100>,\n")
	b.WriteString("    \"engagement\": <0-100>,\n")
	b.WriteString("    \"uniqueness\": <0-100>,\n")
	b.WriteString("    \"platformRelevance\": <0-100>\n")
	b.WriteString("  }")

	if req.Entitlement.Premium() {
		if req.Features.Branding {
			b.WriteString(",\n  \"branding\": {\n")
			b.WriteString("    \"username\": \"<a catchy handle suggestion>\",\n")
			b.WriteString("    \"slogan\": \"<a one-line slogan>\",\n")
			b.WriteString("    \"colors\": [\"<hex>\", \"<hex>\", \"<hex>\"]\n")
			b.WriteString("  }")
		}
		if req.Features.PostIdeas {
			b.WriteString(",\n  \"postIdeas\": [\"<post idea>\", \"<post idea>\", \"<post idea>\"],\n")
			b.WriteString("  \"hashtags\": [\"<hashtag>\", \"<hashtag>\", \"<hashtag>\"]")
		}
		if req.Features.Resume {
			fmt.Fprintf(&b, ",\n  \"resume\": \"<a short professional summary of %s>\"", req.Name)
		}
	}

	b.WriteString("\n}\n\n")
	b.WriteString("The response must be pure JSON with no commentary, no markdown and no code fences.")

	return b.String()
}
