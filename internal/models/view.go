package models

import "time"

// Notice is an armed reminder notification as shown to clients.
type Notice struct {
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Action string    `json:"action"`
	Repeat string    `json:"repeat"`
	Badge  int       `json:"badge"`
	FireAt time.Time `json:"fireAt"`
}

// View is what the "screen" shows: the latest delivered reading and its
// derived texts, or the message of the latest failed run.
type View struct {
	RunID          uint64    `json:"runId"`
	Loading        bool      `json:"loading"`
	Status         string    `json:"status,omitempty"`
	Message        string    `json:"message,omitempty"`
	Reading        *Reading  `json:"reading,omitempty"`
	UVIndex        int       `json:"uvIndex"`
	Category       string    `json:"category"`
	CategoryLabel  string    `json:"categoryLabel"`
	UVLine         string    `json:"uvLine,omitempty"`
	ConditionsLine string    `json:"conditionsLine,omitempty"`
	Advisory       string    `json:"advisory"`
	Reminder       *Notice   `json:"reminder,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
