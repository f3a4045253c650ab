package wordclock

// Bucket floors a minute (0..59) to its five minute bucket (0, 5, ..., 55)
func Bucket(minute int) int {
	return (minute / 5) * 5
}

// NextHour returns the hour after h on a 12 hour dial
func NextHour(h int) int {
	if h == 12 {
		return 1
	}
	return h + 1
}

// MapTime returns the set of ranges to light for hour (1..12) and minute
// (0..59), ordered by position with duplicates removed.
//
// Half past is spelled with PAST. Only buckets above 30 switch to TO and the
// following hour.
func MapTime(l *Layout, hour, minute int) []Range {
	bucket := Bucket(minute)
	active := []Range{l.Word(WordIt), l.Word(WordIs)}

	switch {
	case bucket == 0:
		active = append(active, l.Word(WordOClock), l.Hour(hour))
	case bucket <= 30:
		active = append(active,
			l.Word(WordPast),
			l.Word(WordMinutes),
			l.Minutes(bucket),
			l.Hour(hour))
	default:
		active = append(active,
			l.Word(WordTo),
			l.Word(WordMinutes),
			l.Minutes(60-bucket),
			l.Hour(NextHour(hour)))
	}

	return dedupeRanges(active)
}

func dedupeRanges(ranges []Range) []Range {
	sortRanges(ranges)
	out := ranges[:0]
	for i, r := range ranges {
		if i > 0 && r == out[len(out)-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}
