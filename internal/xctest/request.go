// Package xctest binds the generic session core to XCTest bundle
// executions: the run request, the per-test result fragment, and the
// runner that turns a request into a running operation on a target.
package xctest

import "fmt"

// Mode selects how a test bundle is hosted.
type Mode string

const (
	// ModeLogic runs the bundle directly, without a host application.
	ModeLogic Mode = "logic"
	// ModeApp runs the bundle inside a host application.
	ModeApp Mode = "app"
	// ModeUI runs UI tests driving the app from a separate test host.
	ModeUI Mode = "ui"
)

// RunRequest describes one XCTest execution. The session manager treats it
// as an opaque value; only the runner interprets it.
type RunRequest struct {
	TestBundleID        string            `json:"test_bundle_id"`
	AppBundleID         string            `json:"app_bundle_id,omitempty"`
	TestHostAppBundleID string            `json:"test_host_app_bundle_id,omitempty"`
	Mode                Mode              `json:"mode,omitempty"`
	TestsToRun          []string          `json:"tests_to_run,omitempty"`
	TestsToSkip         []string          `json:"tests_to_skip,omitempty"`
	Environment         map[string]string `json:"environment,omitempty"`
	Arguments           []string          `json:"arguments,omitempty"`
	TimeoutSec          int               `json:"timeout_sec,omitempty"`
	ReportActivities    bool              `json:"report_activities,omitempty"`
}

// Validate rejects malformed requests before any operation starts.
func (r *RunRequest) Validate() error {
	if r.TestBundleID == "" {
		return fmt.Errorf("test_bundle_id is required")
	}
	switch r.Mode {
	case "", ModeLogic:
		// No host application needed.
	case ModeApp:
		if r.AppBundleID == "" {
			return fmt.Errorf("app_bundle_id is required for mode %q", r.Mode)
		}
	case ModeUI:
		if r.AppBundleID == "" {
			return fmt.Errorf("app_bundle_id is required for mode %q", r.Mode)
		}
		if r.TestHostAppBundleID == "" {
			return fmt.Errorf("test_host_app_bundle_id is required for mode %q", r.Mode)
		}
	default:
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	if r.TimeoutSec < 0 {
		return fmt.Errorf("timeout_sec must not be negative")
	}
	return nil
}

// mode returns the effective run mode, defaulting to logic tests.
func (r *RunRequest) mode() Mode {
	if r.Mode == "" {
		return ModeLogic
	}
	return r.Mode
}
