// internal/domain/subscription/scheduler.go
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/milkcart-backend/internal/pkg/events"
	"gorm.io/gorm"
)

// Scheduler is the background worker that keeps subscription dates
// moving: it expires or renews finished terms and advances the next
// delivery date, emitting a delivery-due notification each day. It
// never creates orders.
type Scheduler struct {
	db        *gorm.DB
	publisher events.Publisher
	log       *logrus.Logger
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
}

// NewScheduler creates a scheduler ticking at the given interval
func NewScheduler(db *gorm.DB, publisher events.Publisher, log *logrus.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		db:        db,
		publisher: publisher,
		log:       log,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the scheduler loop until Stop is called
func (w *Scheduler) Start() {
	go w.run()
}

// Stop shuts the scheduler down and waits for the current sweep to finish
func (w *Scheduler) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Scheduler) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(time.Now().UTC())
	for {
		select {
		case <-w.stop:
			return
		case now := <-ticker.C:
			w.sweep(now.UTC())
		}
	}
}

// sweep runs one maintenance pass over active subscriptions
func (w *Scheduler) sweep(now time.Time) {
	if err := w.settleExpired(now); err != nil {
		w.log.WithError(err).Error("subscription expiry sweep failed")
	}
	if err := w.advanceDeliveries(now); err != nil {
		w.log.WithError(err).Error("subscription delivery sweep failed")
	}
}

// settleExpired moves finished terms to expired, or rolls them forward
// for a fresh term when auto-renew is on.
func (w *Scheduler) settleExpired(now time.Time) error {
	var subs []Subscription
	err := w.db.
		Where("status = ? AND end_date <= ?", StatusActive, now).
		Find(&subs).Error
	if err != nil {
		return fmt.Errorf("failed to load expiring subscriptions: %w", err)
	}

	for i := range subs {
		sub := &subs[i]
		if sub.AutoRenew {
			newEnd := sub.EndDate.AddDate(0, 0, sub.PlanDuration)
			updates := map[string]interface{}{
				"start_date":         sub.EndDate,
				"end_date":           newEnd,
				"next_delivery_date": sub.EndDate,
			}
			if err := w.db.Model(sub).Updates(updates).Error; err != nil {
				w.log.WithError(err).WithField("subscription_id", sub.ID).
					Error("failed to renew subscription")
				continue
			}
			w.notify(sub.UserID, "subscription_renewed", "Subscription renewed",
				fmt.Sprintf("Your %s subscription has been renewed", sub.PlanType), sub.ID)
			continue
		}

		if err := w.db.Model(sub).Update("status", StatusExpired).Error; err != nil {
			w.log.WithError(err).WithField("subscription_id", sub.ID).
				Error("failed to expire subscription")
			continue
		}
		w.notify(sub.UserID, "subscription_expired", "Subscription expired",
			fmt.Sprintf("Your %s subscription has ended", sub.PlanType), sub.ID)
	}
	return nil
}

// advanceDeliveries notifies users whose delivery is due and schedules
// the next day.
func (w *Scheduler) advanceDeliveries(now time.Time) error {
	var subs []Subscription
	err := w.db.
		Where("status = ? AND next_delivery_date <= ? AND end_date > ?", StatusActive, now, now).
		Find(&subs).Error
	if err != nil {
		return fmt.Errorf("failed to load due subscriptions: %w", err)
	}

	for i := range subs {
		sub := &subs[i]
		next := sub.NextDeliveryDate.AddDate(0, 0, 1)
		// Catch up after downtime without flooding notifications
		for !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		if err := w.db.Model(sub).Update("next_delivery_date", next).Error; err != nil {
			w.log.WithError(err).WithField("subscription_id", sub.ID).
				Error("failed to advance delivery date")
			continue
		}

		w.notify(sub.UserID, "delivery_due", "Milk delivery today",
			"Your subscription delivery is scheduled for today", sub.ID)
	}
	return nil
}

func (w *Scheduler) notify(userID uint, notifType, title, message string, subID uint) {
	if w.publisher == nil {
		return
	}
	event := events.Event{
		Kind: events.KindNotification,
		Payload: map[string]interface{}{
			"type":    notifType,
			"title":   title,
			"message": message,
			"data":    map[string]interface{}{"subscription_id": subID},
		},
	}
	if err := events.PublishAll(context.Background(), w.publisher, event, events.TopicUser(userID)); err != nil {
		w.log.WithError(err).WithField("user_id", userID).Warn("event publish failed")
	}
}
