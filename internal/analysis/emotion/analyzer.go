package emotion

import (
	"math"
	"strings"
	"unicode"
)

// Label 表示TTS可以接受的情绪标签。
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Excited  Label = "excited"
	Tender   Label = "tender"
	Comfort  Label = "comfort"
	Magnetic Label = "magnetic"
)

// Decision 给出情绪识别结果以及推荐情绪强度。
type Decision struct {
	Emotion Label
	Scale   float32 // 1..5, 0 when nothing was detected
	Score   int
}

// Intensity maps the 1..5 scale onto 0..1.
func (d Decision) Intensity() float64 {
	if d.Scale <= 0 {
		return 0
	}
	return math.Round(float64(d.Scale)/5*100) / 100
}

const (
	wordHit      = 3
	negationSpan = 3
)

// lexicon 单词按词匹配，含空格的短语和中文按子串匹配
var lexicon = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "good news", "thanks", "thank you", "love", "lovely", "wonderful",
		"proud", "awesome", "amazing", "fun", "nice", "relieved", "grateful", "lol", "haha",
		"开心", "高兴", "快乐", "太好了", "谢谢",
	},
	Sad: {
		"sad", "unhappy", "lonely", "alone", "miss", "cry", "crying", "hurt", "upset", "depressed",
		"heartbroken", "anxious", "worried", "stressed", "exhausted", "tired", "lost", "grief",
		"难过", "伤心", "孤单", "寂寞", "失落",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "frustrated", "hate", "unfair", "sick of", "fed up",
		"生气", "愤怒", "受够了", "烦死",
	},
	Excited: {
		"excited", "thrilled", "wow", "can't wait", "cannot wait", "incredible", "unbelievable",
		"finally", "yay", "激动", "期待", "太棒了",
	},
	Tender: {
		"gentle", "softly", "calm", "quiet", "peaceful", "cozy", "relax", "slowly", "温柔", "平静", "放松",
	},
	Comfort: {
		"it's okay", "it's ok", "i'm here", "i am here", "you're not alone", "that sounds hard",
		"take your time", "breathe", "i understand", "be gentle with yourself", "you're safe",
		"别担心", "我在", "陪着", "抱抱",
	},
	Magnetic: {
		"important", "serious", "focus", "remember", "must", "critical", "careful", "please note",
		"重要", "记住", "务必",
	},
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "didn't": true, "isn't": true,
	"wasn't": true, "aren't": true, "can't": true, "won't": true, "hardly": true, "不": true, "没": true,
}

// 被否定的情绪词翻转到相反方向，其余直接丢弃
var negatedTo = map[Label]Label{
	Happy:   Sad,
	Excited: Sad,
	Sad:     Neutral,
	Angry:   Neutral,
}

// Analyze 根据用户话语与AI回复推断应使用的语音情绪。
func Analyze(userUtterance, aiUtterance string) Decision {
	userScore := scoreText(userUtterance)
	aiScore := scoreText(aiUtterance)

	final := aiScore
	// AI回复缺少明显情感时，按用户情绪给出共情的语气
	if final.Score == 0 && userScore.Score > 0 {
		final = respondTo(userScore)
	}

	if final.Score == 0 {
		return Decision{Emotion: Neutral, Scale: 3, Score: 0}
	}

	scale := 2 + float32(final.Score)/4
	switch final.Emotion {
	case Excited:
		scale++
	case Magnetic:
		scale = min(scale, 4)
	case Comfort, Tender:
		scale = min(scale, 3.5)
	}

	return Decision{Emotion: final.Emotion, Scale: max(1, min(scale, 5)), Score: final.Score}
}

func scoreText(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	tokens := tokenize(normalized)
	scores := make(map[Label]int)

	for label, entries := range lexicon {
		for _, entry := range entries {
			if isPhrase(entry) {
				if strings.Contains(normalized, entry) {
					scores[label] += wordHit
				}
				continue
			}
			for i, tok := range tokens {
				if tok != entry {
					continue
				}
				if negated(tokens, i) {
					if flipped, ok := negatedTo[label]; ok && flipped != Neutral {
						scores[flipped] += wordHit
					}
					continue
				}
				scores[label] += wordHit
			}
		}
	}

	if n := strings.Count(text, "!") + strings.Count(text, "！"); n > 0 {
		scores[Excited] += 3 * n
		if n == 1 {
			scores[Happy] += 2
		}
	}

	// 平分时按固定顺序取，保证结果确定
	best, bestScore := Neutral, 0
	for _, label := range []Label{Comfort, Sad, Angry, Excited, Happy, Tender, Magnetic} {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return Decision{Emotion: best, Score: bestScore}
}

func respondTo(user Decision) Decision {
	switch user.Emotion {
	case Sad:
		return Decision{Emotion: Comfort, Score: user.Score}
	case Angry:
		return Decision{Emotion: Magnetic, Score: user.Score}
	case Tender, Comfort:
		return Decision{Emotion: Tender, Score: user.Score}
	default:
		return user
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// isPhrase 多词短语与中文没有可靠的分词，按子串处理
func isPhrase(entry string) bool {
	for _, r := range entry {
		if r == ' ' || r == '\'' || r > unicode.MaxASCII {
			return true
		}
	}
	return false
}

func negated(tokens []string, i int) bool {
	for j := max(0, i-negationSpan); j < i; j++ {
		if negators[tokens[j]] {
			return true
		}
	}
	return false
}
