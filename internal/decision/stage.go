package decision

// Stage identifies one of the two provider rounds of a decision cycle.
type Stage int

const (
	Stage1 Stage = iota + 1
	Stage2
)

func (s Stage) String() string {
	switch s {
	case Stage1:
		return "STAGE1"
	case Stage2:
		return "STAGE2"
	default:
		return "UNKNOWN"
	}
}

// Next returns the stage that follows s. Stage2 is terminal.
func (s Stage) Next() (Stage, bool) {
	if s == Stage1 {
		return Stage2, true
	}
	return 0, false
}

// Stages lists the rounds in protocol order.
func Stages() []Stage {
	return []Stage{Stage1, Stage2}
}
