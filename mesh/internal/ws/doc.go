// Package ws streams the merged mesh view to websocket clients.
package ws
