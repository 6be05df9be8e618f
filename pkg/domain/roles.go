package domain

import "strings"

// Role defines the sender of a message.
type Role string

const (
	// RoleSystem indicates instructions for the model.
	RoleSystem Role = "system"
	// RoleUser indicates a message from the user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant Role = "assistant"
	// RoleTool indicates a tool result.
	RoleTool Role = "tool"
)

// ParseRole maps the role aliases found in persisted histories onto the
// canonical roles. Unknown roles are returned unchanged.
func ParseRole(s string) Role {
	switch strings.ToLower(s) {
	case "system":
		return RoleSystem
	case "user", "human":
		return RoleUser
	case "assistant", "ai", "model":
		return RoleAssistant
	case "tool":
		return RoleTool
	}
	return Role(s)
}

// Content part types.
const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)
