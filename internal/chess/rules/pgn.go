package rules

import (
	"fmt"
	"strings"
	"time"
)

// PGNHeader carries the tag pairs written ahead of the movetext.
type PGNHeader struct {
	Event       string
	Date        time.Time
	White       string
	Black       string
	StartFEN    string
	Termination string
}

// PGNResult maps a winning side ("white", "black" or "" for a draw) to a result token.
func PGNResult(winner string) string {
	switch winner {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

// BuildPGN renders SAN moves with move numbers. A non-standard start
// position is recorded with SetUp/FEN tags.
func BuildPGN(h PGNHeader, sans []string, result string) string {
	var b strings.Builder
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	event := h.Event
	if event == "" {
		event = "ChessCake"
	}
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitizePGN(event))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(h.White))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(h.Black))
	if h.StartFEN != "" && h.StartFEN != StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", sanitizePGN(h.StartFEN))
	}
	if t := strings.TrimSpace(h.Termination); t != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(t))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(sans); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(sans[i]))
		if i+1 < len(sans) {
			b.WriteString(strings.TrimSpace(sans[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
