package mqtt

import "fmt"

// Topic prefixes for the gateway's MQTT hierarchy.
//
// All topics use the flat scheme: snoozgw/{category}/{device_name}
const (
	// TopicPrefix is the base for all gateway topics.
	TopicPrefix = "snoozgw"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "snoozgw/system"
)

// Topics provides builders for gateway MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("bedroom")
//	// Returns: "snoozgw/state/bedroom"
type Topics struct{}

// DeviceState returns the retained state topic for one device.
//
// Example: snoozgw/state/bedroom
func (Topics) DeviceState(deviceName string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceName)
}

// DeviceEvent returns the topic for non-retained state-change events.
//
// Example: snoozgw/event/bedroom
func (Topics) DeviceEvent(deviceName string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, deviceName)
}

// SystemStatus returns the gateway online/offline status topic.
//
// Example: snoozgw/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
