package v1

// Method namespaces are bit-stable wire identifiers for the request/response
// and event protocol spoken over a client connection.
const (
	MethodSessionCreate      = "session.create"
	MethodSessionGet         = "session.get"
	MethodSessionDelete      = "session.delete"
	MethodSessionExport      = "session.export"
	MethodSessionResetQuery  = "session.resetQuery"
	MethodSessionInterrupted = "session.interrupted" // event
	MethodSessionUpdated     = "session.updated"      // event
)

const (
	MethodMessageSDKMessages  = "message.sdkMessages"
	MethodMessageCount        = "message.count"
	MethodMessageRemoveOutput = "message.removeOutput"

	EventSDKMessage         = "sdk.message"
	EventSDKMessageUpdated  = "sdk.message.updated"
	EventStateMessagesDelta = "state.sdkMessages.delta"
)

// SDKMessagesDelta is the payload of EventStateMessagesDelta: an incremental
// view update for subscribers that maintain their own running message list
// rather than replaying sdk.message one at a time. Version is a per-session
// monotonically increasing counter (§4.2.4 step 3, §8 invariant 3).
type SDKMessagesDelta struct {
	Added   []any  `json:"added"`
	Version uint64 `json:"version"`
}

const (
	EventCheckpointCreated = "checkpoint.created"
)

const (
	MethodGoalCreate         = "goal.create"
	MethodGoalGet            = "goal.get"
	MethodGoalList           = "goal.list"
	MethodGoalUpdateStatus   = "goal.updateStatus"
	MethodGoalUpdateProgress = "goal.updateProgress"
	MethodGoalUpdatePriority = "goal.updatePriority"
	MethodGoalStart          = "goal.start"
	MethodGoalComplete       = "goal.complete"
	MethodGoalBlock          = "goal.block"
	MethodGoalUnblock        = "goal.unblock"
	MethodGoalLinkTask       = "goal.linkTask"
	MethodGoalUnlinkTask     = "goal.unlinkTask"
	MethodGoalDelete         = "goal.delete"
	MethodGoalGetNext        = "goal.getNext"
	MethodGoalGetActive      = "goal.getActive"

	EventGoalCreated         = "goal.created"
	EventGoalUpdated         = "goal.updated"
	EventGoalCompleted       = "goal.completed"
	EventGoalProgressUpdated = "goal.progressUpdated"
)

const (
	MethodConfigModel           = "config.model"
	MethodConfigSystemPrompt    = "config.systemPrompt"
	MethodConfigTools           = "config.tools"
	MethodConfigAgents          = "config.agents"
	MethodConfigSandbox         = "config.sandbox"
	MethodConfigMCP             = "config.mcp"
	MethodConfigMCPAddServer    = "config.mcp.addServer"
	MethodConfigMCPRemoveServer = "config.mcp.removeServer"
	MethodConfigOutputFormat    = "config.outputFormat"
	MethodConfigBetas           = "config.betas"
	MethodConfigEnv             = "config.env"
	MethodConfigPermissions     = "config.permissions"
	MethodConfigGetAll          = "config.getAll"
	MethodConfigUpdateBulk      = "config.updateBulk"
)

const (
	MethodSettingsGlobalGet          = "settings.global.get"
	MethodSettingsGlobalUpdate       = "settings.global.update"
	MethodSettingsGlobalSave         = "settings.global.save"
	MethodSettingsMCPToggle          = "settings.mcp.toggle"
	MethodSettingsMCPGetDisabled     = "settings.mcp.getDisabled"
	MethodSettingsMCPSetDisabled     = "settings.mcp.setDisabled"
	MethodSettingsMCPListFromSources = "settings.mcp.listFromSources"
	MethodSettingsMCPUpdateServer    = "settings.mcp.updateServerSettings"
	MethodSettingsFileOnlyRead       = "settings.fileOnly.read"
)

const (
	EventRecurringJobCreated   = "recurringJob.created"
	EventRecurringJobUpdated   = "recurringJob.updated"
	EventRecurringJobTriggered = "recurringJob.triggered"
)

// Auto-subscribe defaults. These are the methods pre-registered for a
// connection joining the reserved "global" scope or a specific session scope,
// absent an operator override in HubConfig.
var (
	DefaultGlobalAutoSubscribe = []string{
		MethodSessionCreate,
		MethodSessionUpdated,
		MethodSessionDelete,
	}
	DefaultSessionAutoSubscribe = []string{
		EventSDKMessage,
		EventStateMessagesDelta,
		MethodSessionUpdated,
	}
)
