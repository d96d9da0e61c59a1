package sockets

import (
	"net/http"
	"time"
)

func WithPingInterval(p time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.pingInterval = p
	}
}

func WithWriteTimeout(t time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.writeTimeout = t
	}
}

// WithQueueSize sets how many messages may wait for a slow client before it is dropped.
func WithQueueSize(n int) func(*Hub) {
	return func(h *Hub) {
		h.queueSize = n
	}
}

// AllowAnyOrigin accepts upgrades from every origin.
func AllowAnyOrigin() func(*Hub) {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
}

func OnError(f func(error)) func(*Hub) {
	return func(h *Hub) {
		h.onError = f
	}
}

// OnConnected is called with every new client once it is registered.
func OnConnected(f func(Connection)) func(*Hub) {
	return func(h *Hub) {
		h.onConnected = f
	}
}
