// Package mq publishes JSON messages to a RabbitMQ topic exchange.
// notifyd hands push notifications to the push gateway through it.
package mq
