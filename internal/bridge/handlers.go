// internal/bridge/handlers.go

package bridge

import (
	"net/http"
	"strconv"

	"agentManager/internal/orchestrator"
)

type createTaskBody struct {
	Name         string            `json:"name"`
	ConnectionID string            `json:"connection_id"`
	ProjectPath  string            `json:"project_path"`
	ProviderID   string            `json:"provider_id"`
	Prompt       string            `json:"prompt"`
	AutoApprove  bool              `json:"auto_approve"`
	Env          map[string]string `json:"env,omitempty"`
	Shell        string            `json:"shell,omitempty"`
}

type resumeBody struct {
	Prompt string `json:"prompt"`
}

type conversationBody struct {
	ProviderID  string            `json:"provider_id"`
	Title       string            `json:"title"`
	Prompt      string            `json:"prompt"`
	AutoApprove bool              `json:"auto_approve"`
	Env         map[string]string `json:"env,omitempty"`
}

type detectResponse struct {
	ConnectionID string   `json:"connection_id"`
	Providers    []string `json:"providers"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Tasks())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Agents())
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.backend.CreateAndStartTask(r.Context(), orchestrator.CreateTaskRequest{
		Name:         body.Name,
		ConnectionID: body.ConnectionID,
		ProjectPath:  body.ProjectPath,
		ProviderID:   body.ProviderID,
		Prompt:       body.Prompt,
		AutoApprove:  body.AutoApprove,
		Env:          body.Env,
		Shell:        body.Shell,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	var body resumeBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.backend.ResumeTask(r.Context(), r.PathValue("id"), body.Prompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StopTask(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddConversation(w http.ResponseWriter, r *http.Request) {
	var body conversationBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	conv, err := s.backend.AddConversation(r.Context(), orchestrator.AddConversationRequest{
		TaskID:      r.PathValue("id"),
		ProviderID:  body.ProviderID,
		Title:       body.Title,
		Prompt:      body.Prompt,
		AutoApprove: body.AutoApprove,
		Env:         body.Env,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	ids, err := s.backend.DetectAgents(r.Context(), connID, force)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, detectResponse{ConnectionID: connID, Providers: ids})
}
