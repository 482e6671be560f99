package acapi

import (
	runtimepkg "github.com/drblury/acapi/internal/runtime"
	brokerpkg "github.com/drblury/acapi/internal/runtime/broker"
	configpkg "github.com/drblury/acapi/internal/runtime/config"
	errspkg "github.com/drblury/acapi/internal/runtime/errors"
	idspkg "github.com/drblury/acapi/internal/runtime/ids"
	instrumentpkg "github.com/drblury/acapi/internal/runtime/instrument"
	jsoncodec "github.com/drblury/acapi/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
	metadatapkg "github.com/drblury/acapi/internal/runtime/metadata"
	payloadpkg "github.com/drblury/acapi/internal/runtime/payload"
	publisherpkg "github.com/drblury/acapi/internal/runtime/publisher"
	transportpkg "github.com/drblury/acapi/internal/runtime/transport"
)

type (
	Config       = configpkg.Config
	Runtime      = runtimepkg.Runtime
	Dependencies = runtimepkg.Dependencies

	Publisher        = publisherpkg.Publisher
	PublisherOptions = publisherpkg.Options
	PublisherMetrics = publisherpkg.Metrics
	Broker           = publisherpkg.Broker
	Message          = publisherpkg.Message

	BrokerConnection = brokerpkg.Connection
	BrokerOptions    = brokerpkg.Options
	PublishOptions   = brokerpkg.PublishOptions
	DialFunc         = brokerpkg.DialFunc

	Payload = payloadpkg.Payload

	Notifier     = instrumentpkg.Notifier
	Event        = instrumentpkg.Event
	Subscriber   = instrumentpkg.Subscriber
	Subscription = instrumentpkg.Subscription
	HandlerFunc  = instrumentpkg.HandlerFunc
	Handlers     = instrumentpkg.Handlers
	Attachment   = instrumentpkg.Attachment

	Listener        = transportpkg.Listener
	ListenerOptions = transportpkg.ListenerOptions
	ReceivedEvent   = transportpkg.ReceivedEvent
	ListenerHandler = transportpkg.HandlerFunc
	HeaderMarshaler = transportpkg.HeaderMarshaler

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConnectionError       = errspkg.ConnectionError
	TransformError        = errspkg.TransformError
	ConfigValidationError = errspkg.ConfigValidationError
)

var (
	Boot           = runtimepkg.Boot
	ValidateConfig = configpkg.ValidateConfig
	LoadConfigFile = configpkg.LoadFile
	Bool           = configpkg.Bool

	NewPublisher        = publisherpkg.New
	NewPublisherMetrics = publisherpkg.NewMetrics
	Transform           = publisherpkg.Transform
	Eligible            = publisherpkg.Eligible
	RoutingKey          = publisherpkg.RoutingKey

	NewBrokerConnection = brokerpkg.New

	NewNotifier = instrumentpkg.NewNotifier
	Attach      = instrumentpkg.Attach

	NewListener = transportpkg.NewListener

	NormalizePayload = payloadpkg.Normalize
	PayloadFromMap   = payloadpkg.FromMap

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrAppIDRequired     = errspkg.ErrAppIDRequired
	ErrEventNameRequired = errspkg.ErrEventNameRequired
	IsConnectionError    = errspkg.IsConnection
	IsTransformError     = errspkg.IsTransform

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewTextLogger        = loggingpkg.NewTextLogger
	DiscardLogger        = loggingpkg.Discard

	NewMessageID = idspkg.NewMessageID
)

// Fixed broker topology.
const (
	QueueName    = brokerpkg.QueueName
	ExchangeName = brokerpkg.ExchangeName

	DefaultNamespace = configpkg.DefaultNamespace
	DefaultAMQPURL   = configpkg.DefaultAMQPURL
	SettingName      = configpkg.SettingName
)

// Reserved payload keys.
const (
	KeyAppID              = payloadpkg.KeyAppID
	KeyBody               = payloadpkg.KeyBody
	KeySubmittedTimestamp = payloadpkg.KeySubmittedTimestamp
)

// BootWithNotifier boots a Runtime whose publisher is subscribed to every
// event in the configured namespace on n.
func BootWithNotifier(conf *Config, log ServiceLogger, n *Notifier) (*Runtime, error) {
	return runtimepkg.Boot(conf, log, runtimepkg.Dependencies{Notifier: n})
}
