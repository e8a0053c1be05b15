package service

import (
	"sidebet/events"
	"sidebet/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// formatMoney renders an amount for notification text, e.g. "$1,250.00"
func formatMoney(amount decimal.Decimal) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("$%.2f", models.RoundMoney(amount).InexactFloat64())
}

// notify queues a notification on the unit of work bus. It is delivered only
// if the unit of work commits.
func notify(bus EventPublisher, n models.Notification) {
	if n.Priority == "" {
		n.Priority = models.NotificationPriorityNormal
	}
	bus.Publish(events.NotificationEvent{Notification: n})
}

func betNotification(userID int64, bet *models.Bet, notificationType models.NotificationType, title, msg string) models.Notification {
	betID := bet.ID
	return models.Notification{
		UserID:       userID,
		Type:         notificationType,
		Title:        title,
		Message:      msg,
		Priority:     models.NotificationPriorityNormal,
		RelatedBetID: &betID,
	}
}

func disputeNotification(userID int64, dispute *models.Dispute, notificationType models.NotificationType, title, msg string) models.Notification {
	betID, disputeID := dispute.BetID, dispute.ID
	return models.Notification{
		UserID:           userID,
		Type:             notificationType,
		Title:            title,
		Message:          msg,
		Priority:         models.NotificationPriorityHigh,
		RelatedBetID:     &betID,
		RelatedDisputeID: &disputeID,
	}
}

func squaresNotification(userID int64, game *models.SquaresGame, notificationType models.NotificationType, title, msg string) models.Notification {
	gameID := game.ID
	return models.Notification{
		UserID:               userID,
		Type:                 notificationType,
		Title:                title,
		Message:              msg,
		Priority:             models.NotificationPriorityNormal,
		RelatedSquaresGameID: &gameID,
	}
}

// notifyParticipants sends one notification per participant plus the creator,
// never twice to the same user
func notifyParticipants(bus EventPublisher, bet *models.Bet, participants []*models.Participant, build func(userID int64) models.Notification) {
	seen := make(map[int64]bool, len(participants)+1)
	for _, p := range participants {
		if seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		notify(bus, build(p.UserID))
	}
	if !seen[bet.CreatorID] {
		notify(bus, build(bet.CreatorID))
	}
}
