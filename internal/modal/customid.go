package modal

import (
	"fmt"
	"strconv"
	"strings"
)

// Component custom ids. Choice buttons address a workflow directly so a click never needs
// session lookup; paging buttons are stateless and carry the subject and target page.
const (
	choicePrefix = "wf"
	pagePrefix   = "modlog"
	sep          = "|"
)

func ChoiceID(workflowID, option string) string {
	return choicePrefix + sep + workflowID + sep + option
}

// ParseChoiceID splits a ChoiceID. Workflow ids never contain the separator.
func ParseChoiceID(customID string) (workflowID, option string, ok bool) {
	parts := strings.Split(customID, sep)
	if len(parts) != 3 || parts[0] != choicePrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func PageID(subjectID string, page int) string {
	return fmt.Sprintf("%s%s%s%s%d", pagePrefix, sep, subjectID, sep, page)
}

func ParsePageID(customID string) (subjectID string, page int, ok bool) {
	parts := strings.Split(customID, sep)
	if len(parts) != 3 || parts[0] != pagePrefix || parts[1] == "" {
		return "", 0, false
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil || page < 0 {
		return "", 0, false
	}
	return parts[1], page, true
}
