// internal/models/task.go

package models

import "time"

// TaskStatus is the persisted lifecycle status of a task.
type TaskStatus string

const (
	TaskIdle    TaskStatus = "idle"
	TaskRunning TaskStatus = "running"
	TaskFailed  TaskStatus = "failed"
)

// Task is one unit of agent work with its own workspace.
type Task struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ConnectionID  string     `json:"connection_id"`
	ProjectPath   string     `json:"project_path"`
	WorkspacePath string     `json:"workspace_path"`
	Branch        string     `json:"branch"`
	ProviderID    string     `json:"provider_id"`
	Status        TaskStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Conversation is one agent terminal inside a task. Each task has exactly one
// main conversation; the rest are auxiliary chats.
type Conversation struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ProviderID string    `json:"provider_id"`
	IsMain     bool      `json:"is_main"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AgentRecord is the in-memory view of a live or recently stopped agent session.
type AgentRecord struct {
	ChannelID      string
	TaskID         string
	ConversationID string
	ProviderID     string
	ConnectionID   string
	Running        bool
	StartedAt      time.Time
	StoppedAt      time.Time
}
