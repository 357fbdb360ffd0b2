package mentor

// StaticResponse is canned guidance for an intent.
type StaticResponse struct {
	Summary   string   `json:"summary"`
	Guidance  string   `json:"guidance"`
	NextSteps []string `json:"next_steps"`
}

// staticResponse returns the canned guidance for intent. General queries
// have none and always take the dynamic route.
func staticResponse(i Intent) (StaticResponse, bool) {
	switch i {
	case IntentArchitecture:
		return StaticResponse{
			Summary: "Start with the boring, documented option.",
			Guidance: "Before designing custom infrastructure, check whether the official SDK or a " +
				"managed service already covers the need. Write down the one requirement the " +
				"standard option cannot meet; if you cannot name it, use the standard option.",
			NextSteps: []string{
				"List the concrete requirements for this decision",
				"Prototype with the official SDK or documented API first",
				"Add abstraction only after a second real use case appears",
			},
		}, true
	case IntentImplementation:
		return StaticResponse{
			Summary: "Follow the documented happy path first.",
			Guidance: "Find the official quickstart or example for the library you are integrating and " +
				"get it working end to end unchanged. Adapt it to your code only after the basic " +
				"call succeeds.",
			NextSteps: []string{
				"Run the official example unmodified",
				"Replace one piece at a time with your own code",
				"Write a test around the working integration",
			},
		}, true
	case IntentDebugging:
		return StaticResponse{
			Summary: "Find the root cause before adding workarounds.",
			Guidance: "Reproduce the failure with the smallest possible input, read the full error and " +
				"the dependency's documentation for it, and fix the cause rather than wrapping it in " +
				"retries or suppression.",
			NextSteps: []string{
				"Capture the exact error and the input that triggers it",
				"Reduce to a minimal reproduction",
				"Check the dependency's issue tracker and docs for the error",
			},
		}, true
	case IntentCodeReview:
		return StaticResponse{
			Summary: "Look for layers that do not earn their keep.",
			Guidance: "Review the change for custom wrappers around well-supported libraries, " +
				"speculative abstractions, and reimplemented functionality. Each layer should map " +
				"to a requirement someone can name.",
			NextSteps: []string{
				"Flag wrappers that only forward calls",
				"Check whether an existing dependency already does the work",
				"Ask for the requirement behind each new abstraction",
			},
		}, true
	case IntentGeneral:
		return StaticResponse{}, false
	}
	return StaticResponse{}, false
}
