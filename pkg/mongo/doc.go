// Package mongo connects to MongoDB with retries. notifyd reads user
// notification preferences from it.
package mongo
