package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOutreachTaskDue = "outreach.task.due"

type OutreachTaskDuePayload struct {
	TaskID         string `json:"taskId"`
	OrganizationID string `json:"organizationId"`
}

func NewOutreachTaskDueTask(payload OutreachTaskDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutreachTaskDue, data), nil
}

func ParseOutreachTaskDuePayload(task *asynq.Task) (OutreachTaskDuePayload, error) {
	var payload OutreachTaskDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutreachTaskDuePayload{}, err
	}
	return payload, nil
}
