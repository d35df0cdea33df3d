package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch status := SubscriptionStatus(strings.ToLower(s)); status {
	case SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("invalid subscription status %q", s)
}

type CycleUnit string

const (
	CycleDay   CycleUnit = "day"
	CycleWeek  CycleUnit = "week"
	CycleMonth CycleUnit = "month"
)

// SubscriptionCycle is a parsed cycle descriptor such as "2 weeks".
type SubscriptionCycle struct {
	Count int
	Unit  CycleUnit
}

func ParseSubscriptionCycle(s string) (SubscriptionCycle, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return SubscriptionCycle{}, fmt.Errorf("invalid cycle %q: want \"<count> <day|week|month>\"", s)
	}

	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 1 {
		return SubscriptionCycle{}, fmt.Errorf("invalid cycle count %q", fields[0])
	}

	unit := CycleUnit(strings.TrimSuffix(fields[1], "s"))
	switch unit {
	case CycleDay, CycleWeek, CycleMonth:
	default:
		return SubscriptionCycle{}, fmt.Errorf("invalid cycle unit %q", fields[1])
	}

	return SubscriptionCycle{Count: count, Unit: unit}, nil
}

func (c SubscriptionCycle) String() string {
	if c.Count == 1 {
		return "1 " + string(c.Unit)
	}
	return strconv.Itoa(c.Count) + " " + string(c.Unit) + "s"
}

// Subscription tracks a recurring order. NextDelivery is edited by hand;
// nothing schedules deliveries from the cycle.
type Subscription struct {
	ID            string             `json:"id"`
	OrderID       string             `json:"order_id"`
	CustomerID    string             `json:"customer_id"`
	Cycle         string             `json:"cycle"`
	NextDelivery  *time.Time         `json:"next_delivery,omitempty"`
	DeliveryCount int                `json:"delivery_count"`
	Status        SubscriptionStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (s *Subscription) Pause() error {
	if s.Status != SubscriptionStatusActive {
		return fmt.Errorf("%w: cannot pause %s subscription", ErrInvalidTransition, s.Status)
	}
	s.Status = SubscriptionStatusPaused
	return nil
}

func (s *Subscription) Resume() error {
	if s.Status != SubscriptionStatusPaused {
		return fmt.Errorf("%w: cannot resume %s subscription", ErrInvalidTransition, s.Status)
	}
	s.Status = SubscriptionStatusActive
	return nil
}

func (s *Subscription) Cancel() error {
	if s.Status == SubscriptionStatusCancelled {
		return fmt.Errorf("%w: subscription already cancelled", ErrInvalidTransition)
	}
	s.Status = SubscriptionStatusCancelled
	return nil
}

// SubscriptionSchedule holds the manually maintained delivery fields.
type SubscriptionSchedule struct {
	NextDelivery  *time.Time `json:"next_delivery"`
	DeliveryCount *int       `json:"delivery_count"`
}
