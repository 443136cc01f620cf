package bio

import (
	"strings"
	"testing"
)

func premiumRequest() GenerationRequest {
	return GenerationRequest{
		Name:        "Alex",
		Platform:    PlatformInstagram,
		Style:       StyleFun,
		Interests:   "travel, coffee",
		Entitlement: EntitlementPremium,
		Features:    Features{Branding: true, PostIdeas: true, Resume: true},
	}
}

func freeRequest() GenerationRequest {
	req := premiumRequest()
	req.Entitlement = EntitlementFree
	req.Features = Features{}
	return req
}

func TestInterpretParsesStrictJSON(t *testing.T) {
	raw := `{
		"bio": "Coffee-fueled traveler ✈️ sharing the fun side of every city",
		"score": 88,
		"scoreDetails": {"readability": 91, "engagement": 85, "uniqueness": 82, "platformRelevance": 94},
		"branding": {"username": "alex.unfiltered", "slogan": "one city at a time", "colors": ["#FF6B6B", "#4ECDC4", "#FFE66D"]},
		"postIdeas": ["morning market tour", "hidden cafe review"],
		"hashtags": ["#travel", "#coffeelover"],
		"resume": "Alex is a travel content creator."
	}`

	result, outcome := Interpret(raw, premiumRequest())

	if outcome != OutcomeParsed {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeParsed)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.Bio != "Coffee-fueled traveler ✈️ sharing the fun side of every city" {
		t.Fatalf("bio = %q", result.Bio)
	}
	if result.Score == nil || *result.Score != 88 {
		t.Fatalf("score = %v, want 88", result.Score)
	}
	if result.ScoreDetails == nil {
		t.Fatal("expected score details")
	}
	if result.ScoreDetails.Readability != 91 ||
		result.ScoreDetails.Engagement != 85 ||
		result.ScoreDetails.Uniqueness != 82 ||
		result.ScoreDetails.PlatformRelevance != 94 {
		t.Fatalf("score details = %+v", *result.ScoreDetails)
	}
	if result.Branding == nil || result.Branding.Username != "alex.unfiltered" {
		t.Fatalf("branding = %+v", result.Branding)
	}
	if len(result.PostIdeas) != 2 || len(result.Hashtags) != 2 {
		t.Fatalf("postIdeas = %v, hashtags = %v", result.PostIdeas, result.Hashtags)
	}
	if result.Resume == "" {
		t.Fatal("expected resume text")
	}
	if result.Error != "" {
		t.Fatalf("error = %q, want empty", result.Error)
	}
}

func TestInterpretRedactsPremiumFieldsForFreeTier(t *testing.T) {
	// 模型未被要求也可能返回付费字段，免费层必须剥除。
	raw := `{
		"bio": "Just here for the coffee",
		"score": 75,
		"scoreDetails": {"readability": 80, "engagement": 70, "uniqueness": 72, "platformRelevance": 78},
		"branding": {"username": "coffee.alex", "slogan": "bean there", "colors": ["#000000"]},
		"postIdeas": ["latte art"],
		"hashtags": ["#coffee"],
		"resume": "Alex drinks coffee professionally."
	}`

	result, outcome := Interpret(raw, freeRequest())

	if outcome != OutcomeParsed {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeParsed)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.Branding != nil {
		t.Fatalf("branding should be redacted, got %+v", result.Branding)
	}
	if result.PostIdeas != nil || result.Hashtags != nil {
		t.Fatalf("postIdeas/hashtags should be redacted, got %v / %v", result.PostIdeas, result.Hashtags)
	}
	if result.Resume != "" {
		t.Fatalf("resume should be redacted, got %q", result.Resume)
	}
	if result.Bio != "Just here for the coffee" {
		t.Fatalf("bio = %q", result.Bio)
	}
	if result.Score == nil || *result.Score != 75 {
		t.Fatalf("score = %v, want 75", result.Score)
	}
}

func TestInterpretFallbackOnFreeText(t *testing.T) {
	raw := "Coffee lover, frequent flyer, occasional philosopher. Follow along for the good parts."

	result, outcome := Interpret(raw, freeRequest())

	if outcome != OutcomeFallback {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeFallback)
	}
	if !result.Success {
		t.Fatal("expected success on fallback path")
	}
	if result.Bio != raw {
		t.Fatalf("bio = %q, want raw text", result.Bio)
	}
	if result.Score == nil || *result.Score != 70 {
		t.Fatalf("score = %v, want 70", result.Score)
	}
	d := result.ScoreDetails
	if d == nil || d.Readability != 70 || d.Engagement != 70 || d.Uniqueness != 70 || d.PlatformRelevance != 70 {
		t.Fatalf("score details = %+v, want all 70", d)
	}
}

func TestInterpretFallbackTruncatesLongText(t *testing.T) {
	raw := strings.Repeat("旅", 600)

	result, outcome := Interpret(raw, freeRequest())

	if outcome != OutcomeFallback {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeFallback)
	}
	if got := len([]rune(result.Bio)); got != 500 {
		t.Fatalf("bio length = %d runes, want 500", got)
	}
}

func TestInterpretFailsOnShortGarbage(t *testing.T) {
	result, outcome := Interpret("nope", freeRequest())

	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeFailed)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error != "generation failed" {
		t.Fatalf("error = %q", result.Error)
	}
	if result.Bio != "" || result.Score != nil {
		t.Fatalf("failure result should carry no content: %+v", result)
	}
}

func TestInterpretStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"bio\": \"Fenced but fine\", \"score\": 60}\n```"

	result, outcome := Interpret(raw, freeRequest())

	if outcome != OutcomeParsed {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeParsed)
	}
	if result.Bio != "Fenced but fine" {
		t.Fatalf("bio = %q", result.Bio)
	}
	if result.Score == nil || *result.Score != 60 {
		t.Fatalf("score = %v, want 60", result.Score)
	}
}

func TestInterpretNonObjectJSONFallsBack(t *testing.T) {
	// 合法 JSON 但不是对象（比如纯字符串）按自由文本处理。
	raw := `"a perfectly valid JSON string that is not an object"`

	result, outcome := Interpret(raw, freeRequest())

	if outcome != OutcomeFallback {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeFallback)
	}
	if !result.Success {
		t.Fatal("expected fallback success")
	}
}
