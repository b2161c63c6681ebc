package entity

const (
	EnvConfigPath = "CONFIG_PATH"

	EnvSourcePrimary   = "SOURCE_PRIMARY"
	EnvSourceSecondary = "SOURCE_SECONDARY"
	EnvSourceDefault   = "SOURCE_DEFAULT"
	EnvFrameTopic      = "FRAME_TOPIC"
	EnvReceiveTimeout  = "RECEIVE_TIMEOUT"
	EnvPanelDriver     = "PANEL_DRIVER"
	EnvButtonEnabled   = "BUTTON_ENABLED"
	EnvHTTPAddr        = "HTTP_ADDR"
	EnvReportRedis     = "REPORT_REDIS_ADDR"
)

// Source names a configured frame source. The selector is two-way.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

func (s Source) Valid() bool {
	return s == SourcePrimary || s == SourceSecondary
}
