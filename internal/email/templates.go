package email

import (
	"fmt"

	"github.com/roomnotify/roomnotify/internal/model"
)

// Date is shown once per booking; only the time of day is repeated for
// the end boundary.
const (
	dateLayout     = "02/01/2006"
	timeLayout     = "15:04"
	dateTimeLayout = "02/01/2006 15:04"
)

// BookingRenderer maps one booking record to a subject/body pair.
// Renderers are pure; no I/O.
type BookingRenderer func(rec model.BookingRecord) (subject, body string)

// bookingRenderers is the event-type registry. Adding a lifecycle
// transition means adding one entry here, nothing else.
var bookingRenderers = map[model.EventType]BookingRenderer{
	model.EventNewBooking:       renderNewBooking,
	model.EventConfirmedBooking: renderConfirmedBooking,
}

// RenderBooking renders the notification content for an event. For an
// event type without a registered renderer it returns empty content and
// ok=false; the caller decides whether that is fatal.
func RenderBooking(ev model.BookingEvent) (subject, body string, ok bool) {
	renderer, ok := bookingRenderers[ev.Type]
	if !ok {
		return "", "", false
	}
	subject, body = renderer(ev.Record)
	return subject, body, true
}

func renderNewBooking(rec model.BookingRecord) (string, string) {
	subject := fmt.Sprintf("Nouvelle demande de réservation: %s", rec.Title)
	body := fmt.Sprintf(`Une nouvelle demande de réservation a été reçue.

Informations de réservation:
----------------------------
Titre: %s
Description: %s
Salle: %s (capacité: %d)
Date: %s
Horaire: %s - %s
Créée par: %s (%s)

Pour approuver cette réservation, veuillez vous connecter au système de réservation.`,
		rec.Title,
		orDefault(rec.Description, "Aucune"),
		rec.RoomName,
		rec.RoomCapacity,
		rec.StartTime.Format(dateLayout),
		rec.StartTime.Format(timeLayout),
		rec.EndTime.Format(timeLayout),
		orDefault(rec.CreatedByName, "Non spécifié"),
		rec.CreatedByEmail,
	)
	return subject, body
}

func renderConfirmedBooking(rec model.BookingRecord) (string, string) {
	subject := fmt.Sprintf("Réservation confirmée: %s", rec.Title)
	// An absent approval timestamp renders as the zero time rather than
	// being hidden, matching the upstream notification text.
	body := fmt.Sprintf(`Une réservation a été confirmée.

Informations de réservation:
----------------------------
Titre: %s
Description: %s
Salle: %s (capacité: %d)
Date: %s
Horaire: %s - %s
Créée par: %s (%s)
Approuvée par: %s
Date d'approbation: %s`,
		rec.Title,
		orDefault(rec.Description, "Aucune"),
		rec.RoomName,
		rec.RoomCapacity,
		rec.StartTime.Format(dateLayout),
		rec.StartTime.Format(timeLayout),
		rec.EndTime.Format(timeLayout),
		orDefault(rec.CreatedByName, "Non spécifié"),
		rec.CreatedByEmail,
		rec.ApprovedByEmail,
		rec.ApprovedAt.Format(dateTimeLayout),
	)
	return subject, body
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
