package speech

// mapVisemeID 将 Azure viseme id (0-21) 归并为前端头像使用的口型。
func mapVisemeID(id int) string {
	switch {
	case id == 0:
		return "silence"
	case id >= 1 && id <= 5:
		return "aa"
	case id >= 6 && id <= 9:
		return "E"
	case id >= 10 && id <= 13:
		return "I"
	case id >= 14 && id <= 17:
		return "O"
	case id >= 18 && id <= 21:
		return "U"
	default:
		return "aa"
	}
}

// ticksToSeconds converts Azure 100ns ticks.
func ticksToSeconds(ticks int64) float64 {
	return float64(ticks) / 10_000_000
}
