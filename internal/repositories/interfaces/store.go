package interfaces

// Store groups the repositories of one backend.
type Store interface {
	Rides() RideRepository
	Participations() ParticipationRepository
	Activity() ActivityRepository
	Chat() ChatRepository
	Payments() PaymentRepository
}
