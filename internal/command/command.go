package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates parsed command intents.
type Kind int

const (
	None Kind = iota
	Dispense
	Status
	Reset
	Home
)

// Intent is one parsed command line, consumed once. Compartment and
// Count carry meaning only for Dispense.
type Intent struct {
	Kind        Kind
	Compartment int
	Count       int
	Raw         string
}

// Parse maps a command line onto an intent. DISPENSE takes a 1-based
// compartment and an optional pill count separated by colons; STATUS,
// RESET and HOME are bare verbs. Anything else yields a None intent
// carrying the raw text for the error reply.
//
// Numeric fields that fail to parse read as 0: a garbage compartment
// becomes an invalid one and is rejected downstream, a garbage or
// missing count is floored to a single pill.
func Parse(line string) Intent {
	intent := Intent{Kind: None, Count: 1, Raw: line}

	switch {
	case strings.HasPrefix(line, "DISPENSE:"):
		intent.Kind = Dispense
		fields := strings.SplitN(strings.TrimPrefix(line, "DISPENSE:"), ":", 2)
		intent.Compartment, _ = strconv.Atoi(fields[0])
		if len(fields) == 2 {
			intent.Count, _ = strconv.Atoi(fields[1])
			if intent.Count < 1 {
				intent.Count = 1
			}
		}
	case line == "STATUS":
		intent.Kind = Status
	case line == "RESET":
		intent.Kind = Reset
	case line == "HOME":
		intent.Kind = Home
	}

	return intent
}

// OK builds a success acknowledgement line.
func OK(message string) string {
	return fmt.Sprintf("{status:OK, message:%q}", message)
}

// Error builds an error reply line.
func Error(message string) string {
	return fmt.Sprintf("{status:ERROR, message:%q}", message)
}

// Unknown builds the reply for an unparseable line, echoing it back.
func Unknown(raw string) string {
	return Error("Unknown command: " + raw)
}

// DispenseResult reports the pills actually detected against the
// request. The two counts differ on partial success and on multi-pill
// drops; the caller decides whether to retry.
func DispenseResult(dispensed, requested int) string {
	return fmt.Sprintf("{status:OK, dispensed:%d, requested:%d}", dispensed, requested)
}

// StatusReport lists the per-compartment lifetime counters.
func StatusReport(counts []int) string {
	fields := make([]string, len(counts))
	for i, c := range counts {
		fields[i] = strconv.Itoa(c)
	}
	return "{status:OK, compartments:[" + strings.Join(fields, ",") + "]}"
}
