package harness

// TraceEvent records one observable step of a scenario run.
//
// A step that completes immediately produces one "step" event. A held step
// produces a "step" event with outcome "pending" once its optimistic write
// is visible, and a "settle" event when its release step lets the remote
// call finish.
type TraceEvent struct {
	Seq     int      `json:"seq"`
	Step    int      `json:"step"`
	Type    string   `json:"type"` // "step" or "settle"
	Op      string   `json:"op"`
	ID      string   `json:"id,omitempty"`
	Outcome string   `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"` // error kind on failure
	Store   []string `json:"store"`           // "id@order" in list order
}

// Trace event types.
const (
	EventStep   = "step"
	EventSettle = "settle"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends ev with the next sequence number.
func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
