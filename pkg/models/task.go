package models

import "strings"

// TaskCategory is the coarse classification of a request.
type TaskCategory string

const (
	TaskResearch TaskCategory = "research"
	TaskAnalysis TaskCategory = "analysis"
	TaskWriting  TaskCategory = "writing"
	TaskCreative TaskCategory = "creative"
	TaskEditing  TaskCategory = "editing"
	TaskGeneral  TaskCategory = "general"
)

// TaskCategories lists every category in display order.
var TaskCategories = []TaskCategory{
	TaskResearch, TaskAnalysis, TaskWriting, TaskCreative, TaskEditing, TaskGeneral,
}

// ParseTaskCategory accepts a category name case-insensitively. The verbs
// used by the interactive front end ("analyze", "write", "create", "edit")
// are accepted as aliases.
func ParseTaskCategory(s string) (TaskCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "research":
		return TaskResearch, true
	case "analysis", "analyze":
		return TaskAnalysis, true
	case "writing", "write":
		return TaskWriting, true
	case "creative", "create":
		return TaskCreative, true
	case "editing", "edit":
		return TaskEditing, true
	case "general":
		return TaskGeneral, true
	}
	return "", false
}
