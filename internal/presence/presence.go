// Package presence derives whether room participants are online from
// the time of their last message.
package presence

import (
	"time"

	"github.com/npezzotti/go-chatroom/internal/types"
)

// Window is how recent a participant's last non-AI message must be
// for them to count as online.
const Window = 10 * time.Minute

func IsOnline(lastSeen *time.Time, now time.Time) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) <= Window
}

// Classify returns a copy of participants with IsOnline evaluated at now.
func Classify(participants []types.Participant, now time.Time) []types.Participant {
	classified := make([]types.Participant, len(participants))
	for i, p := range participants {
		p.IsOnline = IsOnline(p.LastSeen, now)
		classified[i] = p
	}
	return classified
}

func CountOnline(participants []types.Participant, now time.Time) int {
	var n int
	for _, p := range participants {
		if IsOnline(p.LastSeen, now) {
			n++
		}
	}
	return n
}
