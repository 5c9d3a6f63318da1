package protocol

import (
	"fmt"
	"strings"
)

// Render functions produce the coordinator's outbound lines. Each defined
// message has exactly one textual shape; none of these touch state.

// RenderTasks lists the currently claimable components for a build.
func RenderTasks(buildID string, components []string) string {
	return fmt.Sprintf("TASKS %s\nAvailable components: %s", buildID, strings.Join(components, ", "))
}

// RenderAck confirms a successful claim.
func RenderAck(component, agent string) string {
	return fmt.Sprintf("ACK %s %s", component, agent)
}

// RenderReject refuses a claim, quoting the reason.
func RenderReject(component, reason string) string {
	return fmt.Sprintf("REJECT %s %q", component, reason)
}

// RenderMerged announces that a component passed audit and is merged.
func RenderMerged(component string) string {
	return fmt.Sprintf("MERGED %s", component)
}

// RenderTimeout announces that a claim or build stalled and was released.
func RenderTimeout(component string) string {
	return fmt.Sprintf("TIMEOUT %s", component)
}

// RenderRetry announces that a component exhausted its audit retries and
// returned to the open pool.
func RenderRetry(component string) string {
	return fmt.Sprintf("RETRY %s", component)
}

// RenderBuildComplete announces that every component in the build is merged.
func RenderBuildComplete(buildID string) string {
	return fmt.Sprintf("BUILD COMPLETE %s", buildID)
}
