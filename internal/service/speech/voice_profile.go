package speech

import (
	"strings"
)

// 控制标签到 Azure speaking style 的映射。
var styleByEmotion = map[string]string{
	"happy":   "cheerful",
	"excited": "excited",
	"sad":     "sad",
	"comfort": "friendly",
	"tender":  "friendly",
	"warm":    "friendly",
}

// 中文声音使用不同的风格名。
var zhStyleByEmotion = map[string]string{
	"happy":   "cheerful",
	"excited": "cheerful",
	"sad":     "sad",
	"comfort": "gentle",
	"tender":  "affectionate",
	"warm":    "gentle",
}

// 支持 mstts:express-as 的声音及其可用风格。
var voiceStyles = map[string][]string{
	"en-us-jennyneural":    {"assistant", "chat", "cheerful", "excited", "friendly", "hopeful", "sad"},
	"en-us-arianeural":     {"chat", "cheerful", "excited", "friendly", "hopeful", "sad"},
	"en-us-saraneural":     {"cheerful", "excited", "friendly", "hopeful", "sad"},
	"en-us-guyneural":      {"cheerful", "excited", "friendly", "hopeful", "sad"},
	"zh-cn-xiaoxiaoneural": {"affectionate", "cheerful", "gentle", "sad"},
	"zh-cn-xiaoyineural":   {"affectionate", "cheerful", "gentle", "sad"},
}

// ComputeSpeakingStyle 根据声音与控制标签计算 speaking style 与强度。
// 声音不支持该风格时返回空字符串，调用方按普通合成处理。
func ComputeSpeakingStyle(voice, emotionLabel string, intensity float64) (style string, degree float64) {
	normalizedVoice := strings.ToLower(strings.TrimSpace(voice))
	supported, ok := voiceStyles[normalizedVoice]
	if !ok {
		return "", 0
	}

	label := strings.ToLower(strings.TrimSpace(emotionLabel))
	mapping := styleByEmotion
	if strings.HasPrefix(normalizedVoice, "zh-") {
		mapping = zhStyleByEmotion
	}
	mapped, ok := mapping[label]
	if !ok {
		return "", 0
	}

	for _, candidate := range supported {
		if candidate == mapped {
			// styledegree 取值 0.01-2，强度 0.5 对应默认值 1
			if intensity <= 0 {
				return mapped, 0
			}
			return mapped, min(2, max(0.01, intensity*2))
		}
	}
	return "", 0
}
