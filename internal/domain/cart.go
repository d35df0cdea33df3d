package domain

import "time"

type CartLine struct {
	ProductID    string    `json:"product_id"`
	Quantity     int       `json:"quantity"`
	Subscription bool      `json:"subscription"`
	AddedAt      time.Time `json:"added_at,omitempty"`
}

type Cart struct {
	OwnerID string     `json:"owner_id"`
	Lines   []CartLine `json:"lines"`
}

func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
