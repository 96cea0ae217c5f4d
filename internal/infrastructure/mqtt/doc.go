// Package mqtt connects localectl to an MQTT broker.
//
// localectl mirrors every locale status change to a retained state topic
// and accepts set/get commands from other services on the bus:
//
//	{prefix}/status            retained online/offline, also the Last Will
//	{prefix}/state/{name}      retained locale status
//	{prefix}/command/{name}    incoming set/get requests
//	{prefix}/response/{id}     replies to commands, keyed by request ID
//	{prefix}/event/sync        one message per successful poll
//
// {name} and {id} are percent-encoded with EscapeLevel, so a name holding
// '/', '+', '#' or '%' still occupies exactly one topic level.
//
// The client reconnects with exponential backoff and restores its
// subscriptions on every reconnect.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.LocaleState("kitchen"), state, true)
//
// TLS should be enabled (broker.tls) anywhere the broker is not on localhost.
package mqtt
