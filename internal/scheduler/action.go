package scheduler

// ActionKind is the single action the agent may perform in a cycle.
type ActionKind string

const (
	ActionPost        ActionKind = "post"
	ActionPostNoImage ActionKind = "post_no_image"
	ActionReply       ActionKind = "reply"
	ActionSearch      ActionKind = "search"
	ActionLike        ActionKind = "like"
	ActionQuote       ActionKind = "quote"
	ActionRecommend   ActionKind = "recommend"
	ActionNewReleases ActionKind = "new_releases"
)

// Rotation is the fixed order of the filler actions picked when nothing
// interval-driven is due.
var Rotation = []ActionKind{ActionReply, ActionSearch, ActionLike, ActionQuote}

// AllActions lists every ActionKind.
func AllActions() []ActionKind {
	return []ActionKind{
		ActionPost, ActionPostNoImage, ActionReply, ActionSearch,
		ActionLike, ActionQuote, ActionRecommend, ActionNewReleases,
	}
}

// IsPost reports whether the action publishes original content.
func (a ActionKind) IsPost() bool {
	return a == ActionPost || a == ActionPostNoImage
}

func (a ActionKind) String() string { return string(a) }
