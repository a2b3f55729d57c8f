// Package ws pushes watchdog events and poll status to browser clients over
// WebSocket.
package ws
