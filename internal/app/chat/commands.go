package chat

import (
	"strings"

	"loungechat/internal/app/event"
	"loungechat/internal/app/message"
	"loungechat/internal/app/user"
)

const (
	replyPrivateUnsupported  = "Private messages to other players are currently not supported!"
	replyCommandsUnsupported = "Chat commands are currently not supported!"
)

var privateMessageCommands = []string{"/w ", "/whisper ", "/r ", "/reply "}

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// commandReply returns the text answered to a slash command.
func commandReply(text string) string {
	for _, prefix := range privateMessageCommands {
		if strings.HasPrefix(text, prefix) {
			return replyPrivateUnsupported
		}
	}
	return replyCommandsUnsupported
}

// replyToCommand answers the caller only, as the system persona of the caller. The reply
// is neither stored nor broadcast.
func (o *Orchestrator) replyToCommand(connKey string, caller user.User, text string) {
	reply := message.NewAt(user.AsSystemPersona(caller), commandReply(text), o.opts.Clock())
	o.sender.Send(connKey, event.MessageEvent(reply))
}
