package probe

// Result is the outcome of one probe run: either Success or Failure.
type Result interface {
	OK() bool
	isResult()
}

// Success means the connection (including authentication) was established.
type Success struct {
	Greeting string
	User     string
}

// Failure carries the connection layer's error text unchanged.
type Failure struct {
	Message string
}

func (Success) OK() bool { return true }
func (Failure) OK() bool { return false }

func (Success) isResult() {}
func (Failure) isResult() {}
