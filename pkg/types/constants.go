package types

import "time"

// Limit and default constants used across the codebase.
const (
	// --- Trigger evaluation ---

	// MaxConversationMessages caps the transcript length accepted by a check.
	MaxConversationMessages = 10000

	// --- Chat loop ---

	// DefaultChatDelay is how long the chat loop waits before deciding
	// whether to answer.
	DefaultChatDelay = 1500 * time.Millisecond

	// DefaultReplyProbability is the chance that the chat loop forwards a
	// message to the model at all.
	DefaultReplyProbability = 0.3

	// DefaultMaxOutputTokens caps model replies in the chat loop.
	DefaultMaxOutputTokens = 60

	// DefaultHistoryLimit is how many trailing messages are sent to the model.
	DefaultHistoryLimit = 20

	// MaxOverflowRetries bounds retries with a shorter history after the
	// model rejects a request as too long.
	MaxOverflowRetries = 2

	// DefaultSystemPrompt keeps model replies short and unprompting.
	DefaultSystemPrompt = `You are a quiet companion. Reply in one short sentence at most.
Do not ask questions. Do not offer further help, options, or follow-ups.
If nothing needs saying, reply with a single acknowledging word.`

	// --- Tool server ---

	// AcknowledgementText is the fixed reply of the acknowledge tool.
	AcknowledgementText = "Acknowledged."

	// MaxNoteLength is the longest note the acknowledge tool accepts.
	MaxNoteLength = 280

	// --- Storage ---

	// ConfigDir is the directory name under the home directory holding
	// the config file.
	ConfigDir = ".offramp"

	// ConfigFile is the config file name inside ConfigDir.
	ConfigFile = "config.json"
)

// Terminal colors for chat output.
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorGray   = "\033[90m"
)
