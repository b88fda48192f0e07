package entity

// PageResponse is a paginated slice of tasks.
type PageResponse struct {
	Content       []*Task `json:"content"`
	Page          int     `json:"page"`
	Size          int     `json:"size"`
	TotalElements int     `json:"total_elements"`
	TotalPages    int     `json:"total_pages"`
	HasNext       bool    `json:"has_next"`
	HasPrevious   bool    `json:"has_previous"`
}

// NewPageResponse builds the page bookkeeping for a pre-sliced content page.
func NewPageResponse(content []*Task, page, size, total int) *PageResponse {
	if content == nil {
		content = []*Task{}
	}
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	return &PageResponse{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		HasNext:       page+1 < totalPages,
		HasPrevious:   page > 0 && total > 0,
	}
}

// TaskStatistics aggregates a user's visible tasks by dimension and urgency.
type TaskStatistics struct {
	TotalTasks     int `json:"total_tasks"`
	DirectTasks    int `json:"direct_tasks"`
	GroupTasks     int `json:"group_tasks"`
	DeptRoleTasks  int `json:"dept_role_tasks"`
	DelegatedTasks int `json:"delegated_tasks"`
	OverdueTasks   int `json:"overdue_tasks"`
	UrgentTasks    int `json:"urgent_tasks"`
	HighTasks      int `json:"high_priority_tasks"`
}
