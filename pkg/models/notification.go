package models

// NotificationKind identifies the template an intent was built from
type NotificationKind string

const (
	NotificationStatusChanged NotificationKind = "idea.status_changed"
	NotificationEndorsed      NotificationKind = "idea.endorsed"
	NotificationIncubated     NotificationKind = "idea.incubated"
)

// NotificationIntent describes who should be told about a transition and
// why. Delivery belongs to the notification dispatcher.
type NotificationIntent struct {
	RecipientUserID string            `json:"recipient_user_id"`
	Kind            NotificationKind  `json:"kind"`
	Title           string            `json:"title"`
	Message         string            `json:"message"`
	Payload         map[string]string `json:"payload,omitempty"`
}
