package utils

import "time"

// Application Constants
const (
	AppName    = "carpool"
	AppVersion = "1.0.0"

	// Pagination
	DefaultActivityLimit = 100
	MaxActivityLimit     = 500
	DefaultChatLimit     = 200
	MaxChatLimit         = 1000

	// Rides
	RideCodeLength   = 8
	MaxTotalSeats    = 8
	MaxTitleLength   = 120
	MaxPlaceLength   = 200

	// Chat
	MaxMessageLength = 1000

	// Auth
	JWTIssuer  = "carpool"
	JWTTestTTL = time.Hour
)

// Status values of the response envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error messages
const (
	ErrValidationFailed = "Validation failed"
	ErrInternalServer   = "Internal server error"
	ErrUnauthorized     = "Unauthorized access"
	ErrForbidden        = "Access forbidden"
	ErrInvalidToken     = "Invalid or expired token"
)

// Success messages
const (
	MsgRideCreated      = "Ride created successfully"
	MsgRideUpdated      = "Ride updated successfully"
	MsgRideCancelled    = "Ride cancelled successfully"
	MsgRideCompleted    = "Ride completed successfully"
	MsgRideJoined       = "Joined ride successfully"
	MsgRideLeft         = "Left ride successfully"
	MsgPaymentRecorded  = "Payment recorded successfully"
	MsgCheckoutStarted  = "Checkout session created"
	MsgActivityRecorded = "Activity recorded"
	MsgMessagePosted    = "Message posted"
	MsgDataRetrieved    = "Data retrieved successfully"
	MsgWebhookProcessed = "Webhook processed"
)
