package bio

import (
	"strings"
	"testing"
)

func TestBuildPromptDeterministic(t *testing.T) {
	req := premiumRequest()

	first := BuildPrompt(req)
	second := BuildPrompt(req)

	if first != second {
		t.Fatal("same request must produce the same prompt")
	}
}

func TestBuildPromptIncludesRequestFields(t *testing.T) {
	req := freeRequest()

	prompt := BuildPrompt(req)

	for _, want := range []string{"instagram", "fun", `"Alex"`, "travel, coffee"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.Contains(prompt, "pure JSON") {
		t.Fatalf("prompt missing the JSON-only instruction:\n%s", prompt)
	}
}

func TestBuildPromptFreeTierOmitsPremiumSections(t *testing.T) {
	req := freeRequest()
	// 免费层即使带上开关也不得出现付费段落。
	req.Features = Features{Branding: true, PostIdeas: true, Resume: true}

	prompt := BuildPrompt(req)

	for _, banned := range []string{"branding", "postIdeas", "hashtags", "resume"} {
		if strings.Contains(prompt, banned) {
			t.Fatalf("free prompt must not mention %q:\n%s", banned, prompt)
		}
	}
}

func TestBuildPromptPremiumSectionsFollowFeatureFlags(t *testing.T) {
	req := premiumRequest()
	req.Features = Features{PostIdeas: true}

	prompt := BuildPrompt(req)

	if !strings.Contains(prompt, "postIdeas") || !strings.Contains(prompt, "hashtags") {
		t.Fatalf("expected post idea section:\n%s", prompt)
	}
	if strings.Contains(prompt, "branding") || strings.Contains(prompt, "resume") {
		t.Fatalf("sections without their flag must stay out:\n%s", prompt)
	}

	req.Features = Features{Branding: true, Resume: true}
	prompt = BuildPrompt(req)

	if !strings.Contains(prompt, "branding") || !strings.Contains(prompt, "resume") {
		t.Fatalf("expected branding and resume sections:\n%s", prompt)
	}
	if strings.Contains(prompt, "postIdeas") {
		t.Fatalf("postIdeas section must stay out:\n%s", prompt)
	}
}
