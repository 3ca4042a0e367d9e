package dto

type WebhookAckResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Action    string `json:"action,omitempty"`
}
