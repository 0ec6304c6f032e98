package account

// Unlimited is reported as remaining quota for plans without a daily cap.
const Unlimited = -1

// DayLayout formats the per-day usage key.
const DayLayout = "2006-01-02"

// Usage 记录某个用户在某一天的语音交互次数。
type Usage struct {
	UserID     string `json:"userId"`
	Day        string `json:"date"`
	VoiceCount int    `json:"voiceCount"`
}

// UsageResult is the outcome of a quota check or consumption.
type UsageResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Plan      Plan `json:"plan"`
}
