package analyzer

import "strings"

// Status is the classification bitmask of one datagram. Short and Bad end
// processing early and are never combined with other flags.
type Status uint8

const (
	StatusOK    Status = 0
	StatusShort Status = 1
	StatusBad   Status = 2
	StatusOOO   Status = 4
	StatusDup   Status = 8
	StatusTrunc Status = 16
	StatusBER   Status = 32
)

var statusNames = []struct {
	flag Status
	name string
}{
	{StatusShort, "short"},
	{StatusBad, "bad"},
	{StatusOOO, "ooo"},
	{StatusDup, "dup"},
	{StatusTrunc, "trunc"},
	{StatusBER, "ber"},
}

// Has reports whether all bits of flag are set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// String renders "ok" or the set flags joined with '-', e.g. "ooo-dup".
func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	var parts []string
	for _, f := range statusNames {
		if s&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "-")
}
