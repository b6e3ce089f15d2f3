package timetable

import (
	"fmt"
	"strings"
)

var pairEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣"}

const pairSeparator = "——————————————————————"

// PageText renders one day as a message page. For group schedules the
// teacher line is shown, for teacher schedules the groups line is.
func PageText(day Day, kind Kind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s (%s)*\n\n", day.Date, day.Weekday)

	for i, p := range day.Pairs {
		emoji := fmt.Sprintf(" %d.", i+1)
		if i < len(pairEmojis) {
			emoji = pairEmojis[i]
		}
		fmt.Fprintf(&b, "%s *%s*\n  📖 %s\n", emoji, orDash(p.Time), orDash(p.Subject))
		if p.Auditorium != "" {
			fmt.Fprintf(&b, "  📍 %s\n", p.Auditorium)
		}
		if kind == KindGroup && p.Teacher != "" {
			fmt.Fprintf(&b, "  👤 %s\n", p.Teacher)
		}
		if kind == KindTeacher && len(p.Groups) > 0 {
			fmt.Fprintf(&b, "  👥 %s\n", strings.Join(p.Groups, ", "))
		}
		if i < len(day.Pairs)-1 {
			b.WriteString("\n" + pairSeparator + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Pages renders every day into its own message page.
func Pages(days []Day, kind Kind) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, PageText(d, kind))
	}
	return out
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
