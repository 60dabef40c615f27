package models

// Tables lists every model migrated at startup, parents before children.
func Tables() []interface{} {
	return []interface{}{&User{}, &Post{}, &Message{}, &Follower{}}
}
