package presence

// RoomKey names a set of users that receive a class of real-time events
// together. Keys are namespaced by entity kind so a chat and a project
// with the same id never collide.
type RoomKey string

func ChatRoom(chatID string) RoomKey       { return RoomKey("chat:" + chatID) }
func TeamRoom(teamID string) RoomKey       { return RoomKey("team:" + teamID) }
func ProjectRoom(projectID string) RoomKey { return RoomKey("project:" + projectID) }
func TaskRoom(taskID string) RoomKey       { return RoomKey("task:" + taskID) }

// Personal rooms are auto-joined on connect and keyed by the user's own id.
func NotificationsRoom(userID string) RoomKey { return RoomKey("notifications:" + userID) }
func ContactsRoom(userID string) RoomKey      { return RoomKey("contacts:" + userID) }

// CommentThreadRoom picks the room a comment event belongs to. Comments
// live either on a project or directly on a task; the project scope wins
// when both ids are supplied.
func CommentThreadRoom(projectID, taskID string) RoomKey {
	if projectID != "" {
		return ProjectRoom(projectID)
	}
	return TaskRoom(taskID)
}
