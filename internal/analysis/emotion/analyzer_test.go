package emotion

import "testing"

func TestAnalyzeSadUserGetsComfort(t *testing.T) {
	decision := Analyze("I feel so lonely tonight", "Tell me more about your evening.")
	if decision.Emotion != Comfort {
		t.Fatalf("expected comfort emotion, got %s", decision.Emotion)
	}
	if got := decision.Intensity(); got <= 0 || got > 0.7 {
		t.Fatalf("comfort intensity should stay gentle, got %f", got)
	}
}

func TestAnalyzeChineseSadUserGetsComfort(t *testing.T) {
	decision := Analyze("我今天很难过", "嗯，慢慢说。")
	if decision.Emotion != Comfort {
		t.Fatalf("expected comfort emotion, got %s", decision.Emotion)
	}
}

func TestAnalyzeExcitedReply(t *testing.T) {
	decision := Analyze("We did it!!!", "Wow, I can't wait to hear everything!")
	if decision.Emotion != Excited {
		t.Fatalf("expected excited emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 3 {
		t.Fatalf("expected boosted scale for excitement, got %f", decision.Scale)
	}
}

func TestAnalyzeNegationFlipsHappy(t *testing.T) {
	decision := scoreText("honestly i am not happy at all")
	if decision.Emotion != Sad {
		t.Fatalf("expected negated happy to read as sad, got %s", decision.Emotion)
	}
}

func TestAnalyzeWholeWordsOnly(t *testing.T) {
	// "madness" and "missile" must not match "mad" or "miss"
	decision := scoreText("the madness of missile design")
	if decision.Score != 0 {
		t.Fatalf("expected no match, got %s (%d)", decision.Emotion, decision.Score)
	}
}

func TestAnalyzeComfortingReplyIsCapped(t *testing.T) {
	decision := Analyze("", "It's okay, I'm here. Take your time and breathe.")
	if decision.Emotion != Comfort {
		t.Fatalf("expected comfort emotion, got %s", decision.Emotion)
	}
	if decision.Scale > 3.5 {
		t.Fatalf("comfort scale should be capped, got %f", decision.Scale)
	}
}

func TestAnalyzeNeutralIntensity(t *testing.T) {
	decision := Analyze("", "")
	if decision.Emotion != Neutral {
		t.Fatalf("expected neutral emotion, got %s", decision.Emotion)
	}
	if got := decision.Intensity(); got != 0.6 {
		t.Fatalf("expected neutral intensity 0.6, got %f", got)
	}
}
