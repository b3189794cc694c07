package storage

import (
	"context"

	"company-tasks-api/domain"
)

// ListCompanyTasks returns the tasks nested under one company.
func (c *Client) ListCompanyTasks(ctx context.Context, userID, companyID string) ([]domain.Task, error) {
	docs, err := c.listDocuments(ctx, "list tasks", c.tasksPath(userID, companyID))
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(docs))
	for _, doc := range docs {
		task, ok := decodeTask(doc)
		if !ok {
			continue
		}
		if task.CompanyID == "" {
			task.CompanyID = companyID
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// GetTask reads a task when its company is known.
func (c *Client) GetTask(ctx context.Context, userID, companyID, taskID string) (*domain.Task, error) {
	doc, err := c.getDocument(ctx, "get task", c.taskPath(userID, companyID, taskID))
	if err != nil || doc == nil {
		return nil, err
	}
	task, ok := decodeTask(*doc)
	if !ok {
		return nil, nil
	}
	if task.CompanyID == "" {
		task.CompanyID = companyID
	}
	return &task, nil
}

// FindTask locates a task by id alone by probing each of the user's companies
// in list order. The first hit wins. A company whose probe fails is logged and
// skipped unless ctx itself is done.
func (c *Client) FindTask(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	companies, err := c.ListCompanies(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, company := range companies {
		task, err := c.GetTask(ctx, userID, company.ID, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.WithError(err).WithField("company_id", company.ID).Warn("task probe failed, skipping company")
			continue
		}
		if task != nil {
			return task, nil
		}
	}
	return nil, nil
}

// UpsertTask writes the task under task.CompanyID.
func (c *Client) UpsertTask(ctx context.Context, userID string, task domain.Task) error {
	if task.ID == "" || task.CompanyID == "" {
		return domain.E(domain.KindValidation, "task id and company id are required")
	}
	return c.patchDocument(ctx, "upsert task", c.taskPath(userID, task.CompanyID, task.ID), encodeTask(task))
}

func (c *Client) DeleteTask(ctx context.Context, userID, companyID, taskID string) error {
	return c.deleteDocument(ctx, "delete task", c.taskPath(userID, companyID, taskID))
}
