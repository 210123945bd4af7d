package testutil

import "sync"

// ScriptedConfirmer answers questions from a fixed list and records them.
// Once the answers run out it keeps giving the last one (or false if none).
type ScriptedConfirmer struct {
	mu        sync.Mutex
	answers   []bool
	questions []string
}

func NewScriptedConfirmer(answers ...bool) *ScriptedConfirmer {
	return &ScriptedConfirmer{answers: answers}
}

// Confirm satisfies phofmit.Confirmer when passed as a method value.
func (c *ScriptedConfirmer) Confirm(question string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questions = append(c.questions, question)
	if len(c.answers) == 0 {
		return false
	}
	i := len(c.questions) - 1
	if i >= len(c.answers) {
		i = len(c.answers) - 1
	}
	return c.answers[i]
}

// Questions returns the questions asked so far.
func (c *ScriptedConfirmer) Questions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.questions...)
}
