package domain

// Signal bus channels relayed to websocket clients by the hub.
const (
	ChannelPositions = "positions"
	ChannelPrices    = "prices"
	ChannelMonitor   = "monitor"
)

// Event names carried on the bus and in the journal.
const (
	EventPositionOpened    = "position_opened"
	EventPositionTriggered = "position_triggered"
	EventPositionClosed    = "position_closed"
	EventPositionFailed    = "position_failed"
	EventMonitorError      = "monitor_error"
)
