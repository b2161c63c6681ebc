package entity

const (
	EnvConfigPath = "CONFIG_PATH"

	EnvAddress     = "SENDER_ADDRESS"
	EnvTopic       = "FRAME_TOPIC"
	EnvFPS         = "SENDER_FPS"
	EnvSource      = "SENDER_SOURCE"
	EnvImage       = "SENDER_IMAGE"
	EnvText        = "SENDER_TEXT"
	EnvScrollSpeed = "SENDER_SCROLL_SPEED"
	EnvTimezone    = "SENDER_TIMEZONE"
	EnvWidth       = "SENDER_WIDTH"
	EnvHeight      = "SENDER_HEIGHT"
	EnvHTTPAddr    = "SENDER_HTTP_ADDR"

	EnvMQTTBroker   = "MQTT_BROKER"
	EnvMQTTTopic    = "MQTT_TOPIC"
	EnvMQTTClientID = "MQTT_CLIENT_ID"
)

const (
	SourceClock         = "clock"
	SourceCount         = "count"
	SourceScrollingText = "scrollingtext"
	SourceSquare        = "square"
	SourceFile          = "file"
)

// MQTT subtopics under the configured base topic.
const (
	MQTTCommand      = "/cmnd"
	MQTTStat         = "/stat"
	MQTTAvailability = "/availability"

	Online  = "online"
	Offline = "offline"

	CommandChangeMode = "ChangeMode"
)
