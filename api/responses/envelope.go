package responses

// Success wraps every 2xx body.
type Success struct {
	Data any `json:"data"`
}

// Problem is the public shape of a refused or failed request. Retryable is
// only set for transient store failures.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type Failure struct {
	Error Problem `json:"error"`
}
