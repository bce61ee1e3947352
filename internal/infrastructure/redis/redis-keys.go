package redisrepo

import "fmt"

type Keys struct{}

func (k *Keys) RoomMembersKey(roomID string) string {
	return fmt.Sprintf("room:%s:members", roomID)
}

func (k *Keys) AllRoomsKey() string {
	return "rooms:all"
}

// RoomChannel and ThreadChannel name the pub/sub channels. They are
// package-level because the application layer needs the same names when
// subscribing sessions to the hub.

func RoomChannel(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

func ThreadChannel(threadID uint) string {
	return fmt.Sprintf("thread:%d", threadID)
}

func AllChannelPatterns() []string {
	return []string{"room:*", "thread:*"}
}
