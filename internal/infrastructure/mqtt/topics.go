package mqtt

import "fmt"

// TopicPrefix is the root of every Runchain topic.
const TopicPrefix = "runchain"

// Topics builds Runchain MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("ned2") // "runchain/device/ned2/state"
type Topics struct{}

// SystemStatus is the retained online/offline status of this process.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceState is the retained operational state of a device.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceExecution carries one event per gated service execution.
func (Topics) DeviceExecution(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/execution", TopicPrefix, deviceID)
}

// Handoff announces a completed cross-device hand-off.
func (Topics) Handoff(fromDevice, toDevice string) string {
	return fmt.Sprintf("%s/handoff/%s/%s", TopicPrefix, fromDevice, toDevice)
}

// BuildStatus is the retained status of a background build task.
func (Topics) BuildStatus(taskID string) string {
	return fmt.Sprintf("%s/build/%s/status", TopicPrefix, taskID)
}

// Value is the retained topic of one remote value, addressed by namespace,
// owning object and name.
//
// Example: runchain/value/mynamespace/vPLC/pression
func (Topics) Value(namespace, object, name string) string {
	return fmt.Sprintf("%s/value/%s/%s/%s", TopicPrefix, namespace, object, name)
}

// AllDeviceStates matches every device state topic.
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/device/+/state"
}

// AllExecutions matches every device execution topic.
func (Topics) AllExecutions() string {
	return TopicPrefix + "/device/+/execution"
}
