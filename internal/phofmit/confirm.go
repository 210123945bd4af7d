package phofmit

// Confirmer asks the operator a yes/no question and returns the answer.
// Implementations may block indefinitely waiting for input.
type Confirmer func(question string) bool

// AlwaysYes is a Confirmer that accepts every question. It is used when no
// interactive terminal is attached or when the operator passed --yes.
func AlwaysYes(string) bool { return true }

// AlwaysNo is a Confirmer that declines every question.
func AlwaysNo(string) bool { return false }
