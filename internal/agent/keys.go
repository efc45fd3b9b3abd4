// Package agent assembles the customer-support workflow graph: classify an
// incoming message, then search documentation, file a bug ticket or draft a
// response, pausing for human review when the message demands it.
package agent

// State keys of the conversation state bag.
const (
	KeyMessageContent  = "messageContent"
	KeyUserName        = "userName"
	KeyClassification  = "classification"
	KeySearchResults   = "searchResults"
	KeyCustomerHistory = "customerHistory"
	KeyDraftResponse   = "draftResponse"
	KeyHumanDecision   = "humanDecision"
)

// Step names of the support graph.
const (
	StepClassify    = "classify"
	StepSearchDocs  = "searchDocumentation"
	StepBugTracking = "bugTracking"
	StepDraft       = "draftResponse"
	StepHumanReview = "humanReview"
)

// DecisionApproved is the human decision that keeps the drafted response.
// Matched case-insensitively; any other decision discards the draft.
const DecisionApproved = "approved"
