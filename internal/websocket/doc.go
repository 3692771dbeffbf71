// Package websocket streams license, grace period and job events to
// connected clients. Each frame is a JSON Message; slow clients are
// disconnected rather than allowed to stall the hub.
package websocket
