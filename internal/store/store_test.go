package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentManager/internal/models"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestTaskLifecycle(t *testing.T) {
	s, path := openTemp(t)

	require.NoError(t, s.SaveTask(models.Task{ID: "t1", Name: "one", Status: models.TaskIdle}))
	require.NoError(t, s.SaveTask(models.Task{ID: "t2", Name: "two", Status: models.TaskRunning}))

	tk, ok := s.Task("t1")
	require.True(t, ok)
	assert.False(t, tk.CreatedAt.IsZero())

	updated, err := s.UpdateTask("t2", func(t *models.Task) { t.Status = models.TaskIdle })
	require.NoError(t, err)
	assert.Equal(t, models.TaskIdle, updated.Status)

	_, err = s.UpdateTask("nope", func(*models.Task) {})
	assert.ErrorIs(t, err, ErrNotFound)

	reopened, err := Open(path)
	require.NoError(t, err)
	tasks := reopened.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, models.TaskIdle, tasks[1].Status)
}

func TestConversations(t *testing.T) {
	s, _ := openTemp(t)
	now := time.Now()

	require.NoError(t, s.SaveConversation(models.Conversation{ID: "c2", TaskID: "t1", CreatedAt: now}))
	require.NoError(t, s.SaveConversation(models.Conversation{ID: "c1", TaskID: "t1", IsMain: true, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.SaveConversation(models.Conversation{ID: "c3", TaskID: "t2"}))
	require.NoError(t, s.SaveTask(models.Task{ID: "t1"}))

	convs := s.Conversations("t1")
	require.Len(t, convs, 2)
	assert.Equal(t, "c1", convs[0].ID, "main first")

	require.NoError(t, s.DeleteTask("t1"))
	assert.Empty(t, s.Conversations("t1"))
	_, ok := s.Conversation("c3")
	assert.True(t, ok)

	require.NoError(t, s.DeleteConversation("c3"))
	_, ok = s.Conversation("c3")
	assert.False(t, ok)
}

func TestWritersShareFile(t *testing.T) {
	a, path := openTemp(t)
	b, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, a.SaveTask(models.Task{ID: "a"}))
	require.NoError(t, b.SaveTask(models.Task{ID: "b"}))
	assert.Len(t, b.Tasks(), 2)
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0600))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "agentmgr", FileName)
	s, err := Open(path)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Dir(path))

	require.NoError(t, s.SaveTask(models.Task{ID: "t1", Name: "one", Status: models.TaskIdle}))
	assert.FileExists(t, path)
}
