package xctest

// Status is the outcome of a single test method.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusCrashed Status = "crashed"
)

// Result is one test-method outcome, the fragment unit accumulated by a
// session. Runners emit one per finished test, in completion order.
type Result struct {
	BundleName     string   `json:"bundle_name,omitempty"`
	ClassName      string   `json:"class_name"`
	MethodName     string   `json:"method_name"`
	Status         Status   `json:"status"`
	DurationSec    float64  `json:"duration_sec,omitempty"`
	FailureMessage string   `json:"failure_message,omitempty"`
	FailureFile    string   `json:"failure_file,omitempty"`
	FailureLine    int      `json:"failure_line,omitempty"`
	ActivityLogs   []string `json:"activity_logs,omitempty"`
}
