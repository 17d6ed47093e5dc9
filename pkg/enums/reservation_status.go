package enums

// ReservationStatus tracks a stock hold from checkout to settlement.
//
//	active -> committed -> restocked
//	active -> released
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusRestocked ReservationStatus = "restocked"
)

var reservationStatuses = newSet("reservation status",
	ReservationStatusActive,
	ReservationStatusCommitted,
	ReservationStatusReleased,
	ReservationStatusRestocked,
)

func (s ReservationStatus) String() string { return string(s) }
func (s ReservationStatus) IsValid() bool  { return reservationStatuses.has(s) }

func ParseReservationStatus(value string) (ReservationStatus, error) {
	return reservationStatuses.parse(value)
}
