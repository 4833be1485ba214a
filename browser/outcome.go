package browser

// OutcomeKind tags a NavigationOutcome.
type OutcomeKind int

const (
	// OutcomeContinue: the handoff ended without a terminal classification
	// (explicit abandonment).
	OutcomeContinue OutcomeKind = iota
	// OutcomeRedirect: a redirect/callback URL was reached; Status carries
	// the extracted result. Terminal.
	OutcomeRedirect
	// OutcomeLogout: the backend session expired or the user logged out.
	// Terminal.
	OutcomeLogout
	// OutcomeDownload: a document was fetched and handed to the viewer. The
	// session stays open; this kind never reaches the caller's callback.
	OutcomeDownload
)

// NavigationOutcome is the single result a handoff session delivers to its
// caller.
type NavigationOutcome struct {
	Kind   OutcomeKind
	Status string // populated for OutcomeRedirect
	URL    string // the navigation that produced the outcome
}

func (o NavigationOutcome) String() string {
	switch o.Kind {
	case OutcomeRedirect:
		return "redirect(" + o.Status + ")"
	case OutcomeLogout:
		return "logout"
	case OutcomeDownload:
		return "download"
	default:
		return "continue"
	}
}
