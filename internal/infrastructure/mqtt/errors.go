package mqtt

import "errors"

// Connection errors.
var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected")
)

// Request errors. Transport failures wrap the paho token error.
var (
	ErrInvalidTopic      = errors.New("mqtt: empty topic")
	ErrInvalidQoS        = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)
