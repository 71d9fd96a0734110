package orchestrator

// Progress tracks one 0-100 value and a stage message.
// Within a stage the value never decreases; Reset is the only way back to 0.
type Progress struct {
	value   int
	message string
}

// Reset starts a new stage.
func (p *Progress) Reset(label string) {
	p.value = 0
	p.message = label
}

// Update records a reported value. Lower values than the recorded one are
// ignored and an empty message keeps the current one.
func (p *Progress) Update(value int, message string) {
	value = clampPercent(value)
	if value > p.value {
		p.value = value
	}
	if message != "" {
		p.message = message
	}
}

// Complete forces the value to 100.
func (p *Progress) Complete(label string) {
	p.value = 100
	if label != "" {
		p.message = label
	}
}

// SetMessage replaces the message without touching the value.
func (p *Progress) SetMessage(message string) {
	p.message = message
}

func (p *Progress) Value() int { return p.value }

func (p *Progress) Message() string { return p.message }

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
