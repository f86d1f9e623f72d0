// Package conversation decides mode transitions for inbound messages.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bondedhq/link-server/internal/intent"
	"github.com/bondedhq/link-server/internal/model"
)

// Transition is the outcome of routing one classified message.
type Transition struct {
	Mode       model.Mode
	ActiveTask *model.Task
	Note       string
}

// NewTask builds a fresh task for a query.
func NewTask(taskType, query string) *model.Task {
	return &model.Task{
		TaskID:    uuid.New().String(),
		Type:      taskType,
		Query:     query,
		Status:    model.TaskPending,
		StartedAt: time.Now().UTC(),
	}
}

// Determine routes a classified message to the next conversation mode.
// dbAnswerable reports whether a people search can be satisfied from
// records without asking around.
func Determine(currentMode model.Mode, res intent.Result, activeTask *model.Task, dbAnswerable bool) Transition {
	text := strings.TrimSpace(res.Raw)

	switch res.Intent {
	case intent.CancelTask:
		// the caller archives the failed task; the slot is cleared here
		return Transition{Mode: model.ModeConversation, ActiveTask: nil, Note: "cancel_task"}

	case intent.Greeting, intent.SmallTalk:
		return Transition{Mode: model.ModeConversation, ActiveTask: activeTask, Note: "smalltalk"}

	case intent.ConsentResponse:
		return Transition{Mode: model.ModeAwaitingConsent, ActiveTask: activeTask, Note: "consent_response"}

	case intent.Followup:
		mode := currentMode
		if mode == "" || mode == model.ModeIdle {
			mode = model.ModeConversation
		}
		return Transition{Mode: mode, ActiveTask: activeTask, Note: "followup"}

	case intent.DBQuery, intent.EventSearch, intent.ClubSearch, intent.CampusInfo,
		intent.ProfileQuestion, intent.CountQuery:
		task := activeTask
		if task == nil {
			task = NewTask("db_query", text)
		}
		task.Status = model.TaskSearching
		return Transition{Mode: model.ModeAgent, ActiveTask: task, Note: "db_query"}

	case intent.PeopleSearch:
		task := activeTask
		if task == nil {
			task = NewTask("people_search", text)
		}
		if dbAnswerable {
			task.Status = model.TaskSearching
			return Transition{Mode: model.ModeAgent, ActiveTask: task, Note: "people_db"}
		}
		task.Status = model.TaskOutreachSent
		return Transition{Mode: model.ModeOutreach, ActiveTask: task, Note: "people_outreach"}
	}

	return Transition{Mode: model.ModeConversation, ActiveTask: activeTask, Note: "fallback"}
}
