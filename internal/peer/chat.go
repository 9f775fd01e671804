package peer

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// chatChannelLabel names the data channel carrying chat frames.
const chatChannelLabel = "chat"

// ChatPayload is the msgpack frame exchanged over the chat data
// channel once peers are connected directly.
type ChatPayload struct {
	UserID   string `msgpack:"userId"`
	Username string `msgpack:"username"`
	Text     string `msgpack:"text"`
	SentAt   int64  `msgpack:"sentAt"`
}

func encodeChat(userID, username, text string) ([]byte, error) {
	return msgpack.Marshal(ChatPayload{
		UserID:   userID,
		Username: username,
		Text:     text,
		SentAt:   time.Now().UnixMilli(),
	})
}

func decodeChat(data []byte) (ChatPayload, error) {
	var p ChatPayload
	err := msgpack.Unmarshal(data, &p)
	return p, err
}
