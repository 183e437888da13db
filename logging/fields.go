package logging

const (
	FieldSession = "session_id"
	FieldRoom    = "room_id"
	FieldPerson  = "person_id"
	FieldMessage = "message_id"

	FieldEvent   = "event"
	FieldOutcome = "outcome"
	FieldReason  = "reason"
	FieldState   = "attention"
)
