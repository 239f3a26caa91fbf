// Package chats provides the conversation data model used by chat mode.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/mender/pkg/chats/role]: conversation roles (system, user, assistant)
//   - [github.com/germanamz/mender/pkg/chats/message]: a role plus its text
//   - [github.com/germanamz/mender/pkg/chats/chat]: mutable conversation container
//
// No server code is included. The engine converts a chat into the message
// list the model server expects.
package chats
