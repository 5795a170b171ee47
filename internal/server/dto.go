package server

import (
	"sprintsync/internal/domain"
	"sprintsync/internal/engine"
)

type CreateItemRequest struct {
	Title        string   `json:"title"`
	Project      string   `json:"project" doc:"Project slug or id"`
	Slug         string   `json:"slug,omitempty" doc:"Explicit slug; allocated when empty"`
	Description  string   `json:"description,omitempty"`
	SprintNumber int      `json:"sprint_number,omitempty"`
	Progress     string   `json:"progress,omitempty" enum:"empty,in_progress,half_way,ready"`
	Priority     string   `json:"priority,omitempty" enum:"low,med,hi"`
	Status       string   `json:"status,omitempty" enum:"new,started,checked_in,completed,cancelled"`
	Type         string   `json:"type,omitempty" enum:"backlog,task,draft,self"`
	Category     string   `json:"category,omitempty"`
	Order        int      `json:"order,omitempty"`
	Points       int      `json:"points,omitempty"`
	EstDays      float64  `json:"est_days,omitempty"`
	BegDate      string   `json:"beg_date,omitempty" format:"date"`
	EndDate      string   `json:"end_date,omitempty" format:"date"`
	DueDate      string   `json:"due_date,omitempty" format:"date"`
	Labels       []string `json:"labels,omitempty"`
	OwnerID      string   `json:"owner_id,omitempty"`
	AssigneeID   string   `json:"assignee_id,omitempty"`
}

func (r CreateItemRequest) item() domain.WorkItem {
	return domain.WorkItem{
		Slug:         r.Slug,
		Title:        r.Title,
		Description:  r.Description,
		ProjectSlug:  r.Project,
		SprintNumber: r.SprintNumber,
		Progress:     domain.Progress(r.Progress),
		Priority:     domain.Priority(r.Priority),
		Status:       domain.Status(r.Status),
		Type:         domain.ItemType(r.Type),
		Category:     domain.Category(r.Category),
		Order:        r.Order,
		Points:       r.Points,
		EstDays:      r.EstDays,
		BegDate:      r.BegDate,
		EndDate:      r.EndDate,
		DueDate:      r.DueDate,
		Labels:       r.Labels,
		OwnerID:      r.OwnerID,
		AssigneeID:   r.AssigneeID,
	}
}

// UpdateItemRequest is a sparse patch; absent fields keep their value.
type UpdateItemRequest struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Project      *string   `json:"project,omitempty"`
	SprintNumber *int      `json:"sprint_number,omitempty"`
	Progress     *string   `json:"progress,omitempty" enum:"empty,in_progress,half_way,ready"`
	Priority     *string   `json:"priority,omitempty" enum:"low,med,hi"`
	Status       *string   `json:"status,omitempty" enum:"new,started,checked_in,completed,cancelled"`
	Type         *string   `json:"type,omitempty" enum:"backlog,task,draft,self"`
	Category     *string   `json:"category,omitempty"`
	Order        *int      `json:"order,omitempty"`
	Points       *int      `json:"points,omitempty"`
	EstDays      *float64  `json:"est_days,omitempty"`
	BegDate      *string   `json:"beg_date,omitempty"`
	EndDate      *string   `json:"end_date,omitempty"`
	DueDate      *string   `json:"due_date,omitempty"`
	Labels       *[]string `json:"labels,omitempty"`
	OwnerID      *string   `json:"owner_id,omitempty"`
	AssigneeID   *string   `json:"assignee_id,omitempty"`
}

func (r UpdateItemRequest) patch() engine.ItemPatch {
	p := engine.ItemPatch{
		Title:        r.Title,
		Description:  r.Description,
		ProjectSlug:  r.Project,
		SprintNumber: r.SprintNumber,
		Order:        r.Order,
		Points:       r.Points,
		EstDays:      r.EstDays,
		BegDate:      r.BegDate,
		EndDate:      r.EndDate,
		DueDate:      r.DueDate,
		Labels:       r.Labels,
		OwnerID:      r.OwnerID,
		AssigneeID:   r.AssigneeID,
	}
	if r.Progress != nil {
		v := domain.Progress(*r.Progress)
		p.Progress = &v
	}
	if r.Priority != nil {
		v := domain.Priority(*r.Priority)
		p.Priority = &v
	}
	if r.Status != nil {
		v := domain.Status(*r.Status)
		p.Status = &v
	}
	if r.Type != nil {
		v := domain.ItemType(*r.Type)
		p.Type = &v
	}
	if r.Category != nil {
		v := domain.Category(*r.Category)
		p.Category = &v
	}
	return p
}

type StepRequest struct {
	Axis  string `json:"axis" enum:"progress,priority,status,type"`
	Delta int    `json:"delta,omitempty" doc:"Signed step; defaults to +1"`
}

type CircleRequest struct {
	Axis string `json:"axis" enum:"progress,priority,status,type"`
}

type SwitchRequest struct {
	Type string `json:"type" enum:"backlog,task,draft,self"`
}

type CreateProjectRequest struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Pin         bool   `json:"pin,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	StartDate   string `json:"start_date,omitempty" format:"date"`
	EndDate     string `json:"end_date,omitempty" format:"date"`
	SprintWeeks int    `json:"sprint_weeks,omitempty"`
}

func (r CreateProjectRequest) project() domain.Project {
	return domain.Project{
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Pin:         r.Pin,
		OwnerID:     r.OwnerID,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		SprintWeeks: r.SprintWeeks,
	}
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Pin         *bool   `json:"pin,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	SprintWeeks *int    `json:"sprint_weeks,omitempty"`
}

func (r UpdateProjectRequest) patch() engine.ProjectPatch {
	return engine.ProjectPatch{
		Name:        r.Name,
		Description: r.Description,
		Pin:         r.Pin,
		OwnerID:     r.OwnerID,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		SprintWeeks: r.SprintWeeks,
	}
}

type EnsureAccountRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type ItemList struct {
	Items []domain.WorkItem `json:"items"`
	Total int               `json:"total"`
}

// CreatedAPIKey carries the plaintext key alongside the stored record.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}
