package gateway

import (
	"wayfarer/pkg/api"
)

// Aliases for the shared gateway types defined in api.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type FileAttachment = api.FileAttachment
type SessionContext = api.SessionContext

type MessageHandler = api.MessageHandler
