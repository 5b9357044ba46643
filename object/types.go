package object

// Wire object types. The set is open: unknown types decode fine and their
// handling (store or reject) is a validation policy decision.
const (
	TypeThreadCreate  = "thread_create"
	TypePost          = "post"
	TypeMessage       = "message"
	TypeProfile       = "profile"
	TypeChannelCreate = "channel_create"
	TypeAttachment    = "attachment"
	// TypeSpaceKeyGrant carries a space key wrapped to one member device.
	TypeSpaceKeyGrant = "space_key_grant"
	// TypeModerationAction and TypeSpacePolicy are governance types: their
	// payloads are interpreted by the moderation engine and must stay
	// plaintext.
	TypeModerationAction = "moderation_action"
	TypeSpacePolicy      = "space_policy"
)
