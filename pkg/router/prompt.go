package router

import (
	"fmt"

	"github.com/workyterm/workyterm/pkg/models"
)

type role struct {
	name    string
	framing string
}

var roles = map[models.TaskCategory]role{
	models.TaskResearch: {"Researcher", "You are a thorough researcher. Find accurate, relevant information."},
	models.TaskAnalysis: {"Analyst", "You are an analytical expert. Provide detailed, logical analysis."},
	models.TaskWriting:  {"Writer", "You are a skilled writer. Create clear, engaging content."},
	models.TaskCreative: {"Creative", "You are a creative thinker. Generate innovative, original ideas."},
	models.TaskEditing:  {"Editor", "You are a meticulous editor. Improve clarity and quality."},
	models.TaskGeneral:  {"General Assistant", "You are a helpful assistant. Provide useful, friendly assistance."},
}

// TaskPrompt frames a request with the role prompt for its category.
func TaskPrompt(cat models.TaskCategory, text string) string {
	r, ok := roles[cat]
	if !ok {
		r = roles[models.TaskGeneral]
	}
	return fmt.Sprintf("%s\n\nAs the team's %s, please help with this request:\n\n%s", r.framing, r.name, text)
}
