// Package mqtt provides MQTT connectivity for Runchain.
//
// The broker carries three kinds of traffic:
//   - Remote values (grip pressure, registry document blobs), retained under
//     runchain/value/{namespace}/{object}/{name}
//   - Device state and execution events under runchain/device/{id}/...
//   - Process status (online/offline with Last Will) on runchain/system/status
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStates(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
// Credentials should come from RUNCHAIN_MQTT_USERNAME / RUNCHAIN_MQTT_PASSWORD.
package mqtt
