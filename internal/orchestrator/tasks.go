// internal/orchestrator/tasks.go

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"agentManager/internal/agent"
	"agentManager/internal/apperr"
	"agentManager/internal/models"
	"agentManager/internal/providers"
	"agentManager/internal/ptyid"
	"agentManager/internal/shellsafe"
	"agentManager/internal/utils"
	"agentManager/internal/workspace"
)

// AttachmentsDir is where AttachFile puts uploads, relative to the workspace.
const AttachmentsDir = ".agentmgr/attachments"

type CreateTaskRequest struct {
	Name         string
	ConnectionID string
	ProjectPath  string
	ProviderID   string
	Prompt       string
	AutoApprove  bool
	Env          map[string]string
	Shell        string
}

type AddConversationRequest struct {
	TaskID      string
	ProviderID  string
	Title       string
	Prompt      string
	AutoApprove bool
	Env         map[string]string
}

type launch struct {
	task        models.Task
	conv        models.Conversation
	channelID   string
	kind        ptyid.Kind
	prompt      string
	autoApprove bool
	resume      bool
	env         map[string]string
	shell       string
}

func (o *Orchestrator) provider(id string) (providers.Provider, error) {
	p, ok := o.opts.Registry.Get(id)
	if !ok {
		return providers.Provider{}, apperr.New(apperr.Validation, "provider", id, ErrUnknownProvider)
	}
	return p, nil
}

// start launches the session described by l and records it. The task is
// marked running before the exit hook is attached so that an agent which
// exits immediately still settles the task to idle.
func (o *Orchestrator) start(ctx context.Context, l launch) error {
	logger := o.logger.With("task", l.task.ID, "channel", l.channelID)

	shell := l.shell
	if shell == "" {
		shell = o.opts.Shell
	}
	sess, err := o.opts.Sessions.StartSession(ctx, agent.StartOptions{
		SessionID:    l.channelID,
		ConnectionID: l.task.ConnectionID,
		ProviderID:   l.conv.ProviderID,
		Kind:         l.kind,
		Cwd:          l.task.WorkspacePath,
		Shell:        shell,
		Cols:         o.opts.Cols,
		Rows:         o.opts.Rows,
		Prompt:       l.prompt,
		AutoApprove:  l.autoApprove,
		Resume:       l.resume,
		Env:          l.env,
	})
	if err != nil {
		logger.Warn("agent start failed", "err", err)
		if l.kind == ptyid.KindMain {
			if _, uerr := o.opts.Store.UpdateTask(l.task.ID, func(t *models.Task) {
				t.Status = models.TaskFailed
			}); uerr != nil {
				logger.Warn("task status not set to failed", "err", uerr)
			}
		}
		return err
	}

	o.track(models.AgentRecord{
		ChannelID:      l.channelID,
		TaskID:         l.task.ID,
		ConversationID: l.conv.ID,
		ProviderID:     l.conv.ProviderID,
		ConnectionID:   l.task.ConnectionID,
		Running:        true,
		StartedAt:      o.clockFn(),
	}, sess)

	if _, err := o.opts.Store.UpdateTask(l.task.ID, func(t *models.Task) {
		t.Status = models.TaskRunning
	}); err != nil {
		logger.Warn("task status not set to running", "err", err)
	}
	sess.OnExit(func(err error) { o.onExit(l.channelID, sess, err) })

	logger.Info("agent started", "provider", l.conv.ProviderID, "resume", l.resume)
	return nil
}

// CreateAndStartTask creates a workspace, persists the task with its main
// conversation and starts the main agent. A start failure leaves the task
// persisted with status failed and is returned alongside it.
func (o *Orchestrator) CreateAndStartTask(ctx context.Context, req CreateTaskRequest) (models.Task, error) {
	p, err := o.provider(req.ProviderID)
	if err != nil {
		return models.Task{}, err
	}
	if req.Shell != "" {
		if err := shellsafe.ValidateShell(req.Shell); err != nil {
			return models.Task{}, apperr.New(apperr.Validation, "create task", req.Name, err)
		}
	}

	ws, err := o.opts.Workspaces.Create(ctx, req.ConnectionID, req.ProjectPath, req.Name)
	if err != nil {
		return models.Task{}, err
	}

	now := o.clockFn().UTC()
	task := models.Task{
		ID:            uuid.NewString(),
		Name:          req.Name,
		ConnectionID:  req.ConnectionID,
		ProjectPath:   utils.ToRemotePath(req.ProjectPath),
		WorkspacePath: ws.Path,
		Branch:        ws.Branch,
		ProviderID:    p.ID,
		Status:        models.TaskIdle,
		CreatedAt:     now,
	}
	conv := models.Conversation{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		ProviderID: p.ID,
		IsMain:     true,
		Title:      req.Name,
		CreatedAt:  now,
	}

	unlock := o.taskLock(task.ID)
	defer unlock()

	if err := o.opts.Store.SaveTask(task); err != nil {
		return models.Task{}, err
	}
	if err := o.opts.Store.SaveConversation(conv); err != nil {
		return models.Task{}, err
	}

	err = o.start(ctx, launch{
		task:        task,
		conv:        conv,
		channelID:   ptyid.Main(p.ID, task.ID),
		kind:        ptyid.KindMain,
		prompt:      req.Prompt,
		autoApprove: req.AutoApprove,
		env:         req.Env,
		shell:       req.Shell,
	})
	if stored, ok := o.opts.Store.Task(task.ID); ok {
		task = stored
	}
	return task, err
}

// ResumeTask restarts the main agent of taskID. A workspace that vanished is
// recreated first and the agents start fresh there. An empty followUp is a plain resume; a follow-up prompt
// starts a fresh invocation unless the provider combines resume and prompt.
func (o *Orchestrator) ResumeTask(ctx context.Context, taskID, followUp string) (models.Task, error) {
	unlock := o.taskLock(taskID)
	defer unlock()

	task, ok := o.opts.Store.Task(taskID)
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	p, err := o.provider(task.ProviderID)
	if err != nil {
		return task, err
	}

	exists, err := o.opts.Workspaces.Exists(ctx, task.ConnectionID, task.WorkspacePath)
	if err != nil {
		return task, err
	}
	recreated := !exists
	if recreated {
		o.logger.Warn("workspace missing, recreating", "task", task.ID, "path", task.WorkspacePath)
		ws, err := o.opts.Workspaces.Create(ctx, task.ConnectionID, task.ProjectPath, task.Name)
		if err != nil {
			return task, err
		}
		if task, err = o.opts.Store.UpdateTask(task.ID, func(t *models.Task) {
			t.WorkspacePath = ws.Path
			t.Branch = ws.Branch
		}); err != nil {
			return task, err
		}
		// Agent histories are keyed by working directory; the old ones are
		// unreachable from the new worktree.
		for _, id := range o.runningFor(task.ID) {
			o.stopChannel(id)
		}
		o.forgetIdentities(task.ID)
	}

	channelID := ptyid.Main(p.ID, task.ID)
	o.stopChannel(channelID)

	conv, err := o.mainConversation(task)
	if err != nil {
		return task, err
	}

	err = o.start(ctx, launch{
		task:      task,
		conv:      conv,
		channelID: channelID,
		kind:      ptyid.KindMain,
		prompt:    followUp,
		resume:    !recreated && (followUp == "" || !p.FreshOnPromptedResume()),
	})
	if stored, ok := o.opts.Store.Task(task.ID); ok {
		task = stored
	}
	return task, err
}

func (o *Orchestrator) mainConversation(task models.Task) (models.Conversation, error) {
	for _, c := range o.opts.Store.Conversations(task.ID) {
		if c.IsMain {
			return c, nil
		}
	}
	conv := models.Conversation{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		ProviderID: task.ProviderID,
		IsMain:     true,
		Title:      task.Name,
		CreatedAt:  o.clockFn().UTC(),
	}
	return conv, o.opts.Store.SaveConversation(conv)
}

// AddConversation starts an auxiliary agent in the task's existing workspace.
func (o *Orchestrator) AddConversation(ctx context.Context, req AddConversationRequest) (models.Conversation, error) {
	unlock := o.taskLock(req.TaskID)
	defer unlock()

	task, ok := o.opts.Store.Task(req.TaskID)
	if !ok {
		return models.Conversation{}, ErrTaskNotFound
	}
	providerID := req.ProviderID
	if providerID == "" {
		providerID = task.ProviderID
	}
	p, err := o.provider(providerID)
	if err != nil {
		return models.Conversation{}, err
	}

	conv := models.Conversation{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		ProviderID: p.ID,
		Title:      req.Title,
		CreatedAt:  o.clockFn().UTC(),
	}
	if err := o.opts.Store.SaveConversation(conv); err != nil {
		return models.Conversation{}, err
	}

	err = o.start(ctx, launch{
		task:        task,
		conv:        conv,
		channelID:   ptyid.Chat(p.ID, conv.ID),
		kind:        ptyid.KindChat,
		prompt:      req.Prompt,
		autoApprove: req.AutoApprove,
		env:         req.Env,
	})
	return conv, err
}

// ChannelID returns the channel id of a conversation.
func ChannelID(taskID string, c models.Conversation) string {
	if c.IsMain {
		return ptyid.Main(c.ProviderID, taskID)
	}
	return ptyid.Chat(c.ProviderID, c.ID)
}

// StopTask stops every agent of taskID and settles the task to idle.
func (o *Orchestrator) StopTask(taskID string) error {
	unlock := o.taskLock(taskID)
	defer unlock()
	return o.stopTask(taskID)
}

func (o *Orchestrator) stopTask(taskID string) error {
	if _, ok := o.opts.Store.Task(taskID); !ok {
		return ErrTaskNotFound
	}
	for _, id := range o.runningFor(taskID) {
		o.stopChannel(id)
	}
	_, err := o.opts.Store.UpdateTask(taskID, func(t *models.Task) {
		if t.Status == models.TaskRunning {
			t.Status = models.TaskIdle
		}
	})
	return err
}

// DeleteTask stops the task's agents, forgets their session identities,
// removes the worktree and deletes the records. The project checkout itself
// is never removed.
func (o *Orchestrator) DeleteTask(ctx context.Context, taskID string) error {
	unlock := o.taskLock(taskID)
	defer unlock()

	task, ok := o.opts.Store.Task(taskID)
	if !ok {
		return ErrTaskNotFound
	}
	if err := o.stopTask(taskID); err != nil {
		return err
	}

	o.forgetIdentities(taskID)

	err := o.opts.Workspaces.Remove(ctx, task.ConnectionID, task.ProjectPath, task.WorkspacePath, task.Branch)
	switch {
	case errors.Is(err, workspace.ErrPrimaryWorkspace):
		o.logger.Info("task ran in the project checkout, nothing to remove", "task", taskID)
	case err != nil:
		return err
	}

	if err := o.opts.Store.DeleteTask(taskID); err != nil {
		return err
	}

	o.mu.Lock()
	for id, e := range o.agents {
		if e.rec.TaskID == taskID {
			delete(o.agents, id)
		}
	}
	delete(o.locks, taskID)
	o.mu.Unlock()

	o.logger.Info("task deleted", "task", taskID)
	return nil
}

// AttachFile uploads localPath into the task's attachments directory and
// returns the remote path.
func (o *Orchestrator) AttachFile(ctx context.Context, taskID, localPath string) (string, error) {
	task, ok := o.opts.Store.Task(taskID)
	if !ok {
		return "", ErrTaskNotFound
	}
	dir := utils.RemoteJoin(task.WorkspacePath, AttachmentsDir)
	res, err := o.opts.Transport.ExecuteCommand(ctx, task.ConnectionID, "mkdir -p "+shellsafe.Quote(dir), "")
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", apperr.New(apperr.Command, "create attachments dir", dir,
			fmt.Errorf("exit %d: %s", res.ExitCode, res.Stderr))
	}

	remote := utils.RemoteJoin(dir, filepath.Base(localPath))
	if err := o.opts.Transport.UploadFile(ctx, task.ConnectionID, localPath, remote); err != nil {
		return "", err
	}
	return remote, nil
}

// forgetIdentities drops the stored session identities of every conversation
// of taskID.
func (o *Orchestrator) forgetIdentities(taskID string) {
	if o.opts.Identity == nil {
		return
	}
	for _, c := range o.opts.Store.Conversations(taskID) {
		if err := o.opts.Identity.Remove(ChannelID(taskID, c)); err != nil {
			o.logger.Warn("session identity not removed", "task", taskID, "conversation", c.ID, "err", err)
		}
	}
}
