package attendance

// Summarize は snapshot 集合から件数を数え直す。差分更新はしない。
// LATE は late に数えたうえで present にも含める。
func Summarize(snaps []Snapshot) Counts {
	c := Counts{Total: len(snaps)}
	for _, s := range snaps {
		switch s.Status {
		case StatusPresent:
			c.Present++
		case StatusLate:
			c.Late++
			c.Present++
		case StatusAbsent:
			c.Absent++
		case StatusExcused:
			c.Excused++
		case StatusSick:
			c.Sick++
		}
	}
	return c
}
