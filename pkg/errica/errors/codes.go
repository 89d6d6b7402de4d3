// Package errors defines error codes and categories for errica
package errors

import "strings"

// Error Categories
const (
	// Configuration Errors (CON)
	ConfigurationCategory = "CON"

	// Channel Errors (CHN)
	ChannelCategory = "CHN"

	// Monitoring Errors (MON)
	MonitoringCategory = "MON"
)

// Configuration Error Codes
const (
	ErrInvalidConfig      Code = "CON001" // Invalid configuration value
	ErrMissingConfig      Code = "CON002" // Missing required configuration
	ErrUnknownChannelType Code = "CON003" // Channel type has no registered creator
	ErrConfigLoadFailed   Code = "CON004" // Failed to load configuration file
)

// Channel Error Codes
const (
	ErrChannelUnreachable Code = "CHN001" // Endpoint could not be reached
	ErrChannelTimeout     Code = "CHN002" // Delivery or health check timed out
	ErrChannelAuth        Code = "CHN003" // Credentials rejected
	ErrChannelRejected    Code = "CHN004" // Endpoint answered with a non-success status
	ErrChannelInternal    Code = "CHN005" // Unexpected failure inside the channel
	ErrChannelPanic       Code = "CHN006" // Channel panicked despite the no-panic contract
	ErrChannelInit        Code = "CHN007" // Channel could not be constructed
	ErrChannelRateLimited Code = "CHN008" // Send suppressed by the channel rate limit
)

// Monitoring Error Codes
const (
	ErrMonitoringDisabled Code = "MON001" // Capture absorbed because monitoring is disabled
)

// Category returns the three-letter category prefix of the code.
func (c Code) Category() string {
	if len(c) < 3 {
		return ""
	}
	return string(c[:3])
}

// Diagnostic returns the short human-readable word used in channel results.
func (c Code) Diagnostic() string {
	switch c {
	case ErrChannelUnreachable:
		return "unreachable"
	case ErrChannelTimeout:
		return "timeout"
	case ErrChannelAuth:
		return "unauthorized"
	case ErrChannelRejected:
		return "rejected"
	case ErrChannelInternal:
		return "internal error"
	case ErrChannelPanic:
		return "panic"
	case ErrChannelInit:
		return "initialization failed"
	case ErrChannelRateLimited:
		return "rate limited"
	case ErrMonitoringDisabled:
		return "monitoring disabled"
	default:
		return strings.ToLower(string(c))
	}
}
