package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	PurchaseID string    `json:"purchase_id,omitempty"`
	AccountID  string    `json:"account_id"`
	Amount     int64     `json:"amount,omitempty"`
	Status     string    `json:"status"`
	Details    any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogPurchase(purchaseID, buyerID, sellerID, promptID string, price int64, status string) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "PURCHASE",
		PurchaseID: purchaseID,
		AccountID:  buyerID,
		Amount:     price,
		Status:     status,
		Details: map[string]string{
			"seller_id": sellerID,
			"prompt_id": promptID,
		},
	}
	a.log(event)
}

func (a *Logger) LogBonus(accountID, eventType string, amount int64) {
	event := Event{
		Timestamp: time.Now(),
		EventType: eventType,
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
	}
	a.log(event)
}

func (a *Logger) LogError(purchaseID, accountID string, err error) {
	event := Event{
		Timestamp:  time.Now(),
		EventType:  "ERROR",
		PurchaseID: purchaseID,
		AccountID:  accountID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
